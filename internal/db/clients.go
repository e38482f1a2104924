package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"zapisly/internal/model"
)

// CreateClient inserts a client into a master's book.
func (db *DB) CreateClient(ctx context.Context, c *model.Client) error {
	now := time.Now().UTC()
	res, err := db.ExecContext(ctx, `
		INSERT INTO clients (
			master_id, telegram_id, telegram_username, name, phone, comment,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.MasterID, nullableID(c.TelegramID), c.TelegramUsername, c.Name, c.Phone, c.Comment,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	c.ID, err = res.LastInsertId()
	c.CreatedAt, c.UpdatedAt = now, now
	return err
}

// GetClientByID returns a client by primary key.
func (db *DB) GetClientByID(ctx context.Context, id int64) (*model.Client, error) {
	row := db.QueryRowContext(ctx, selectClient+" WHERE id = ? LIMIT 1", id)
	return scanClient(row)
}

// GetClientByPhone finds a client within one master's book.
func (db *DB) GetClientByPhone(ctx context.Context, masterID int64, phone string) (*model.Client, error) {
	row := db.QueryRowContext(ctx, selectClient+" WHERE master_id = ? AND phone = ? LIMIT 1", masterID, phone)
	return scanClient(row)
}

// GetOrCreateClient finds a client by phone or creates one. Public
// bookings use this so returning clients keep their visit history.
func (db *DB) GetOrCreateClient(ctx context.Context, masterID int64, name, phone string, telegramID int64, telegramUsername string) (*model.Client, error) {
	if phone != "" {
		c, err := db.GetClientByPhone(ctx, masterID, phone)
		if err == nil {
			// Refresh Telegram info if the client now books via the bot.
			if telegramID != 0 && c.TelegramID != telegramID {
				c.TelegramID = telegramID
				c.TelegramUsername = telegramUsername
				_, _ = db.ExecContext(ctx,
					"UPDATE clients SET telegram_id = ?, telegram_username = ?, updated_at = ? WHERE id = ?",
					telegramID, telegramUsername, time.Now().UTC(), c.ID,
				)
			}
			return c, nil
		}
		if err != model.ErrNotFound {
			return nil, err
		}
	}
	c := &model.Client{
		MasterID:         masterID,
		TelegramID:       telegramID,
		TelegramUsername: telegramUsername,
		Name:             name,
		Phone:            phone,
	}
	if err := db.CreateClient(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListClients returns a master's client book ordered by recency.
func (db *DB) ListClients(ctx context.Context, masterID int64) ([]model.Client, error) {
	rows, err := db.QueryContext(ctx, selectClient+" WHERE master_id = ? ORDER BY updated_at DESC", masterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []model.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

// RecordVisit updates client stats after a completed appointment.
func (db *DB) RecordVisit(ctx context.Context, clientID int64, amount int64, visitedAt time.Time) error {
	_, err := db.ExecContext(ctx, `
		UPDATE clients
		SET total_visits = total_visits + 1,
		    total_spent = total_spent + ?,
		    last_visit = ?,
		    updated_at = ?
		WHERE id = ?`,
		amount, visitedAt.UTC(), time.Now().UTC(), clientID,
	)
	return err
}

const selectClient = `
	SELECT id, master_id, telegram_id, telegram_username, name, phone, comment,
	       total_visits, total_spent, last_visit, created_at, updated_at
	FROM clients`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*model.Client, error) {
	var c model.Client
	var telegramID sql.NullInt64
	var username, phone, comment sql.NullString
	var lastVisit sql.NullTime
	err := row.Scan(
		&c.ID, &c.MasterID, &telegramID, &username, &c.Name, &phone, &comment,
		&c.TotalVisits, &c.TotalSpent, &lastVisit, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.TelegramID = telegramID.Int64
	c.TelegramUsername = username.String
	c.Phone = phone.String
	c.Comment = comment.String
	if lastVisit.Valid {
		t := lastVisit.Time
		c.LastVisit = &t
	}
	return &c, nil
}
