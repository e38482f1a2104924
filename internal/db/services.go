package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"zapisly/internal/model"
	"zapisly/internal/schedule"
)

// CreateService adds a service to a master's catalog. Duration must be
// a positive multiple of the slot step so generated slots stay aligned.
func (db *DB) CreateService(ctx context.Context, s *model.Service) error {
	if err := validateServiceDuration(s.DurationMinutes); err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := db.ExecContext(ctx, `
		INSERT INTO services (master_id, name, description, duration_minutes, price, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.MasterID, s.Name, s.Description, s.DurationMinutes, s.Price, s.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	s.ID, err = res.LastInsertId()
	s.CreatedAt, s.UpdatedAt = now, now
	return err
}

// GetServiceByID returns a service by primary key.
func (db *DB) GetServiceByID(ctx context.Context, id int64) (*model.Service, error) {
	var s model.Service
	var description sql.NullString
	err := db.QueryRowContext(ctx, `
		SELECT id, master_id, name, description, duration_minutes, price, is_active, created_at, updated_at
		FROM services WHERE id = ? LIMIT 1`, id,
	).Scan(&s.ID, &s.MasterID, &s.Name, &description, &s.DurationMinutes, &s.Price, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Description = description.String
	return &s, nil
}

// ListServices returns a master's catalog. activeOnly hides archived
// services from the public booking surface.
func (db *DB) ListServices(ctx context.Context, masterID int64, activeOnly bool) ([]model.Service, error) {
	query := `
		SELECT id, master_id, name, description, duration_minutes, price, is_active, created_at, updated_at
		FROM services WHERE master_id = ?`
	if activeOnly {
		query += " AND is_active = 1"
	}
	query += " ORDER BY name"

	rows, err := db.QueryContext(ctx, query, masterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []model.Service
	for rows.Next() {
		var s model.Service
		var description sql.NullString
		if err := rows.Scan(&s.ID, &s.MasterID, &s.Name, &description, &s.DurationMinutes, &s.Price, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Description = description.String
		services = append(services, s)
	}
	return services, rows.Err()
}

// CountActiveServices supports the free-tier catalog limit.
func (db *DB) CountActiveServices(ctx context.Context, masterID int64) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM services WHERE master_id = ? AND is_active = 1", masterID,
	).Scan(&n)
	return n, err
}

// UpdateService persists catalog edits.
func (db *DB) UpdateService(ctx context.Context, s *model.Service) error {
	if err := validateServiceDuration(s.DurationMinutes); err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `
		UPDATE services
		SET name = ?, description = ?, duration_minutes = ?, price = ?, is_active = ?, updated_at = ?
		WHERE id = ? AND master_id = ?`,
		s.Name, s.Description, s.DurationMinutes, s.Price, s.IsActive, time.Now().UTC(), s.ID, s.MasterID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ArchiveService hides a service without breaking appointment history.
func (db *DB) ArchiveService(ctx context.Context, masterID, serviceID int64) error {
	res, err := db.ExecContext(ctx,
		"UPDATE services SET is_active = 0, updated_at = ? WHERE id = ? AND master_id = ?",
		time.Now().UTC(), serviceID, masterID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func validateServiceDuration(minutes int) error {
	step := int(schedule.SlotStep / time.Minute)
	if minutes <= 0 || minutes%step != 0 {
		return fmt.Errorf("%w: duration must be a positive multiple of %d minutes", schedule.ErrValidation, step)
	}
	return nil
}
