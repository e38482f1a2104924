package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"zapisly/internal/model"
)

// CreateReferral links a newly registered master to their referrer.
// A master can only be referred once.
func (db *DB) CreateReferral(ctx context.Context, r *model.Referral) error {
	now := time.Now().UTC()
	res, err := db.ExecContext(ctx, `
		INSERT INTO referrals (referrer_id, referred_id, status, commission_percent, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ReferrerID, r.ReferredID, model.ReferralPending, r.CommissionPercent, now, now,
	)
	if err != nil {
		return fmt.Errorf("create referral: %w", err)
	}
	r.ID, err = res.LastInsertId()
	if err != nil {
		return err
	}
	r.Status = model.ReferralPending
	r.CreatedAt, r.UpdatedAt = now, now
	return nil
}

// GetReferralByReferred finds the pending or activated referral record
// for a referred master.
func (db *DB) GetReferralByReferred(ctx context.Context, referredID int64) (*model.Referral, error) {
	var r model.Referral
	var activatedAt sql.NullTime
	err := db.QueryRowContext(ctx, `
		SELECT id, referrer_id, referred_id, status, commission_percent, commission_rub, activated_at, created_at, updated_at
		FROM referrals WHERE referred_id = ? LIMIT 1`, referredID,
	).Scan(&r.ID, &r.ReferrerID, &r.ReferredID, &r.Status, &r.CommissionPercent, &r.CommissionRub, &activatedAt, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if activatedAt.Valid {
		t := activatedAt.Time
		r.ActivatedAt = &t
	}
	return &r, nil
}

// ActivateReferral credits the referrer's commission when the referred
// master makes their first subscription payment.
func (db *DB) ActivateReferral(ctx context.Context, referredID int64, commissionRub int64) (*model.Referral, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	r := &model.Referral{}
	var activatedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT id, referrer_id, referred_id, status, commission_percent, commission_rub, activated_at, created_at, updated_at
		FROM referrals WHERE referred_id = ? LIMIT 1`, referredID,
	).Scan(&r.ID, &r.ReferrerID, &r.ReferredID, &r.Status, &r.CommissionPercent, &r.CommissionRub, &activatedAt, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if r.Status != model.ReferralPending {
		return nil, model.ErrInvalidTransition
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE referrals
		SET status = ?, commission_rub = ?, activated_at = ?, updated_at = ?
		WHERE id = ?`,
		model.ReferralActivated, commissionRub, now, now, r.ID,
	)
	if err != nil {
		return nil, err
	}
	r.Status = model.ReferralActivated
	r.CommissionRub = commissionRub
	r.ActivatedAt = &now
	r.UpdatedAt = now
	return r, tx.Commit()
}

// ListReferralsByReferrer returns a master's referral earnings view.
func (db *DB) ListReferralsByReferrer(ctx context.Context, referrerID int64) ([]model.Referral, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, referrer_id, referred_id, status, commission_percent, commission_rub, activated_at, created_at, updated_at
		FROM referrals WHERE referrer_id = ? ORDER BY created_at DESC`, referrerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Referral
	for rows.Next() {
		var r model.Referral
		var activatedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.ReferrerID, &r.ReferredID, &r.Status, &r.CommissionPercent, &r.CommissionRub, &activatedAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		if activatedAt.Valid {
			t := activatedAt.Time
			r.ActivatedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
