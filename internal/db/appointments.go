package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"zapisly/internal/model"
)

// activeStatusSet is the SQL fragment matching statuses that occupy a
// slot. Keep in sync with model.ActiveStatuses.
const activeStatusSet = "('scheduled', 'confirmed')"

// CreateAppointmentChecked inserts a new appointment after verifying,
// inside one IMMEDIATE transaction, that the interval is still free and
// the master's active-appointment quota allows it. maxActive <= 0 means
// unlimited. Under concurrent requests for the same interval exactly
// one insert wins; the rest get model.ErrConflict.
func (db *DB) CreateAppointmentChecked(ctx context.Context, a *model.Appointment, maxActive int) error {
	if !a.EndTime.After(a.StartTime) {
		return fmt.Errorf("appointment end must be after start")
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin booking tx: %w", err)
	}
	defer tx.Rollback()

	if a.IdempotencyKey != "" {
		var existing int64
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM appointments WHERE idempotency_key = ?", a.IdempotencyKey,
		).Scan(&existing)
		if err == nil {
			return model.ErrConflict
		}
		if err != sql.ErrNoRows {
			return err
		}
	}

	overlaps, err := countOverlaps(ctx, tx, a.MasterID, a.StartTime, a.EndTime, 0)
	if err != nil {
		return err
	}
	if overlaps > 0 {
		return model.ErrConflict
	}

	if maxActive > 0 {
		var active int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM appointments
			WHERE master_id = ? AND status IN `+activeStatusSet,
			a.MasterID,
		).Scan(&active)
		if err != nil {
			return err
		}
		if active >= maxActive {
			return model.ErrQuotaExceeded
		}
	}

	now := time.Now().UTC()
	if a.Status == "" {
		a.Status = model.StatusScheduled
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO appointments (
			master_id, client_id, service_id, start_time, end_time, status,
			comment, idempotency_key, rescheduled_from_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.MasterID, a.ClientID, a.ServiceID, a.StartTime.UTC(), a.EndTime.UTC(), a.Status,
		a.Comment, nullableString(a.IdempotencyKey), nullableID(a.RescheduledFromID), now, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return model.ErrConflict
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	a.ID, err = res.LastInsertId()
	if err != nil {
		return err
	}
	a.CreatedAt, a.UpdatedAt = now, now
	return tx.Commit()
}

// RescheduleAppointmentChecked moves an active appointment to a new
// interval. The conflict check excludes the appointment itself so a
// move within its own current interval always succeeds.
func (db *DB) RescheduleAppointmentChecked(ctx context.Context, masterID, appointmentID int64, newStart, newEnd time.Time) (*model.Appointment, error) {
	if !newEnd.After(newStart) {
		return nil, fmt.Errorf("appointment end must be after start")
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reschedule tx: %w", err)
	}
	defer tx.Rollback()

	a, err := getAppointmentTx(ctx, tx, masterID, appointmentID)
	if err != nil {
		return nil, err
	}
	if !a.IsActive() {
		return nil, model.ErrInvalidTransition
	}

	overlaps, err := countOverlaps(ctx, tx, masterID, newStart, newEnd, appointmentID)
	if err != nil {
		return nil, err
	}
	if overlaps > 0 {
		return nil, model.ErrConflict
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		"UPDATE appointments SET start_time = ?, end_time = ?, updated_at = ? WHERE id = ?",
		newStart.UTC(), newEnd.UTC(), now, appointmentID,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, model.ErrConflict
		}
		return nil, err
	}
	a.StartTime, a.EndTime, a.UpdatedAt = newStart.UTC(), newEnd.UTC(), now
	return a, tx.Commit()
}

func countOverlaps(ctx context.Context, tx *sql.Tx, masterID int64, start, end time.Time, excludeID int64) (int, error) {
	query := `
		SELECT COUNT(*) FROM appointments
		WHERE master_id = ?
		  AND status IN ` + activeStatusSet + `
		  AND start_time < ? AND end_time > ?`
	args := []any{masterID, end.UTC(), start.UTC()}
	if excludeID != 0 {
		query += " AND id != ?"
		args = append(args, excludeID)
	}
	var n int
	err := tx.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// GetAppointmentByID returns an appointment scoped to a master.
func (db *DB) GetAppointmentByID(ctx context.Context, masterID, id int64) (*model.Appointment, error) {
	row := db.QueryRowContext(ctx, selectAppointment+" WHERE id = ? AND master_id = ? LIMIT 1", id, masterID)
	return scanAppointment(row)
}

func getAppointmentTx(ctx context.Context, tx *sql.Tx, masterID, id int64) (*model.Appointment, error) {
	row := tx.QueryRowContext(ctx, selectAppointment+" WHERE id = ? AND master_id = ? LIMIT 1", id, masterID)
	return scanAppointment(row)
}

// ListAppointmentsBetween returns a master's active appointments that
// intersect [from, to). Slot generation uses this as the busy list.
func (db *DB) ListAppointmentsBetween(ctx context.Context, masterID int64, from, to time.Time) ([]model.Appointment, error) {
	rows, err := db.QueryContext(ctx, selectAppointment+`
		WHERE master_id = ?
		  AND status IN `+activeStatusSet+`
		  AND start_time < ? AND end_time > ?
		ORDER BY start_time`,
		masterID, to.UTC(), from.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

// ListAppointmentsByMaster returns appointments for the cabinet view,
// most recent first. Statuses filters when non-empty.
func (db *DB) ListAppointmentsByMaster(ctx context.Context, masterID int64, statuses []string, limit int) ([]model.Appointment, error) {
	query := selectAppointment + " WHERE master_id = ?"
	args := []any{masterID}
	if len(statuses) > 0 {
		query += " AND status IN (?" + strings.Repeat(", ?", len(statuses)-1) + ")"
		for _, s := range statuses {
			args = append(args, s)
		}
	}
	query += " ORDER BY start_time DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

// ListUpcomingAppointments returns active appointments starting within
// the window. The reminder loop polls this.
func (db *DB) ListUpcomingAppointments(ctx context.Context, from, to time.Time) ([]model.Appointment, error) {
	rows, err := db.QueryContext(ctx, selectAppointment+`
		WHERE status IN `+activeStatusSet+`
		  AND start_time >= ? AND start_time < ?
		ORDER BY start_time`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

// ListAppointmentsNeedingReminder returns active appointments starting
// within the window whose reminder has not gone out yet.
func (db *DB) ListAppointmentsNeedingReminder(ctx context.Context, from, to time.Time) ([]model.Appointment, error) {
	rows, err := db.QueryContext(ctx, selectAppointment+`
		WHERE status IN `+activeStatusSet+`
		  AND reminder_sent = 0
		  AND start_time >= ? AND start_time < ?
		ORDER BY start_time`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

// MarkReminderSent flags an appointment so the reminder loop never
// sends twice.
func (db *DB) MarkReminderSent(ctx context.Context, id int64) error {
	_, err := db.ExecContext(ctx,
		"UPDATE appointments SET reminder_sent = 1, updated_at = ? WHERE id = ?",
		time.Now().UTC(), id,
	)
	return err
}

// CountActiveAppointments reports how many slots a master currently
// occupies, for quota display.
func (db *DB) CountActiveAppointments(ctx context.Context, masterID int64) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM appointments WHERE master_id = ? AND status IN "+activeStatusSet,
		masterID,
	).Scan(&n)
	return n, err
}

// validTransitions lists which status changes are allowed.
var validTransitions = map[string][]string{
	model.StatusScheduled: {model.StatusConfirmed, model.StatusCompleted, model.StatusCancelled, model.StatusNoShow},
	model.StatusConfirmed: {model.StatusCompleted, model.StatusCancelled, model.StatusNoShow},
}

func transitionAllowed(from, to string) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// UpdateAppointmentStatus applies a status transition. Terminal
// statuses reject further changes with model.ErrInvalidTransition.
func (db *DB) UpdateAppointmentStatus(ctx context.Context, masterID, id int64, status string) (*model.Appointment, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	a, err := getAppointmentTx(ctx, tx, masterID, id)
	if err != nil {
		return nil, err
	}
	if !transitionAllowed(a.Status, status) {
		return nil, model.ErrInvalidTransition
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		"UPDATE appointments SET status = ?, updated_at = ? WHERE id = ?",
		status, now, id,
	)
	if err != nil {
		return nil, err
	}
	a.Status, a.UpdatedAt = status, now
	return a, tx.Commit()
}

// CancelAppointment cancels an active appointment, freeing its slot.
func (db *DB) CancelAppointment(ctx context.Context, masterID, id int64, reason string) (*model.Appointment, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	a, err := getAppointmentTx(ctx, tx, masterID, id)
	if err != nil {
		return nil, err
	}
	if !a.IsActive() {
		return nil, model.ErrInvalidTransition
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		"UPDATE appointments SET status = ?, cancellation_reason = ?, updated_at = ? WHERE id = ?",
		model.StatusCancelled, reason, now, id,
	)
	if err != nil {
		return nil, err
	}
	a.Status, a.CancellationReason, a.UpdatedAt = model.StatusCancelled, reason, now
	return a, tx.Commit()
}

// CompleteAppointment marks an appointment completed, records the
// payment and bumps the client's visit stats in the same transaction.
func (db *DB) CompleteAppointment(ctx context.Context, masterID, id int64, paymentAmount int64) (*model.Appointment, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	a, err := getAppointmentTx(ctx, tx, masterID, id)
	if err != nil {
		return nil, err
	}
	if !transitionAllowed(a.Status, model.StatusCompleted) {
		return nil, model.ErrInvalidTransition
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		"UPDATE appointments SET status = ?, payment_amount = ?, updated_at = ? WHERE id = ?",
		model.StatusCompleted, paymentAmount, now, id,
	)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE clients
		SET total_visits = total_visits + 1,
		    total_spent = total_spent + ?,
		    last_visit = ?,
		    updated_at = ?
		WHERE id = ?`,
		paymentAmount, a.StartTime, now, a.ClientID,
	)
	if err != nil {
		return nil, err
	}
	a.Status, a.PaymentAmount, a.UpdatedAt = model.StatusCompleted, &paymentAmount, now
	return a, tx.Commit()
}

const selectAppointment = `
	SELECT id, master_id, client_id, service_id, start_time, end_time, status,
	       comment, cancellation_reason, payment_amount, idempotency_key,
	       rescheduled_from_id, reminder_sent, created_at, updated_at
	FROM appointments`

func scanAppointment(row rowScanner) (*model.Appointment, error) {
	var a model.Appointment
	var comment, reason, idemKey sql.NullString
	var payment, rescheduledFrom sql.NullInt64
	err := row.Scan(
		&a.ID, &a.MasterID, &a.ClientID, &a.ServiceID, &a.StartTime, &a.EndTime, &a.Status,
		&comment, &reason, &payment, &idemKey,
		&rescheduledFrom, &a.ReminderSent, &a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Comment = comment.String
	a.CancellationReason = reason.String
	a.IdempotencyKey = idemKey.String
	if payment.Valid {
		v := payment.Int64
		a.PaymentAmount = &v
	}
	a.RescheduledFromID = rescheduledFrom.Int64
	return &a, nil
}

func collectAppointments(rows *sql.Rows) ([]model.Appointment, error) {
	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
