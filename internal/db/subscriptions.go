package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"zapisly/internal/model"
)

// CreateSubscription records a new paid period and flips the master's
// premium flag in the same transaction.
func (db *DB) CreateSubscription(ctx context.Context, s *model.Subscription) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO subscriptions (master_id, plan, status, starts_at, expires_at, amount_rub, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.MasterID, s.Plan, model.SubscriptionActive, s.StartsAt.UTC(), s.ExpiresAt.UTC(), s.AmountRub, now, now,
	)
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	s.ID, err = res.LastInsertId()
	if err != nil {
		return err
	}
	s.Status = model.SubscriptionActive
	s.CreatedAt, s.UpdatedAt = now, now

	_, err = tx.ExecContext(ctx,
		"UPDATE masters SET is_premium = 1, premium_until = ?, updated_at = ? WHERE id = ?",
		s.ExpiresAt.UTC(), now, s.MasterID,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// GetCurrentSubscription returns the master's latest active, unexpired
// subscription.
func (db *DB) GetCurrentSubscription(ctx context.Context, masterID int64) (*model.Subscription, error) {
	var s model.Subscription
	err := db.QueryRowContext(ctx, `
		SELECT id, master_id, plan, status, starts_at, expires_at, amount_rub, created_at, updated_at
		FROM subscriptions
		WHERE master_id = ? AND status = ? AND expires_at > ?
		ORDER BY expires_at DESC LIMIT 1`,
		masterID, model.SubscriptionActive, time.Now().UTC(),
	).Scan(&s.ID, &s.MasterID, &s.Plan, &s.Status, &s.StartsAt, &s.ExpiresAt, &s.AmountRub, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ExpireSubscriptions marks lapsed subscriptions and drops premium for
// masters with no remaining active period. The expiry sweep runs this
// periodically.
func (db *DB) ExpireSubscriptions(ctx context.Context) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		"UPDATE subscriptions SET status = ?, updated_at = ? WHERE status = ? AND expires_at <= ?",
		model.SubscriptionExpired, now, model.SubscriptionActive, now,
	)
	if err != nil {
		return 0, err
	}
	expired, _ := res.RowsAffected()

	_, err = tx.ExecContext(ctx, `
		UPDATE masters SET is_premium = 0, updated_at = ?
		WHERE is_premium = 1
		  AND id NOT IN (
			SELECT master_id FROM subscriptions WHERE status = ? AND expires_at > ?
		  )`,
		now, model.SubscriptionActive, now,
	)
	if err != nil {
		return 0, err
	}
	return int(expired), tx.Commit()
}
