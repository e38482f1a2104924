package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"zapisly/internal/model"
)

// CreateMaster inserts a new master row and returns it with ID set.
func (db *DB) CreateMaster(ctx context.Context, m *model.Master) error {
	if m.Timezone == "" {
		m.Timezone = "Europe/Moscow"
	}
	if m.Currency == "" {
		m.Currency = "RUB"
	}
	if m.WorkSchedule == "" {
		m.WorkSchedule = "{}"
	}
	now := time.Now().UTC()
	res, err := db.ExecContext(ctx, `
		INSERT INTO masters (
			telegram_id, telegram_username, name, phone, city, timezone,
			currency, work_schedule, referral_code, referred_by_id,
			is_onboarded, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.TelegramID, m.TelegramUsername, m.Name, m.Phone, m.City, m.Timezone,
		m.Currency, m.WorkSchedule, m.ReferralCode, nullableID(m.ReferredByID),
		m.IsOnboarded, now, now,
	)
	if err != nil {
		return fmt.Errorf("create master: %w", err)
	}
	m.ID, err = res.LastInsertId()
	m.CreatedAt, m.UpdatedAt = now, now
	return err
}

// GetMasterByID returns a master by primary key.
func (db *DB) GetMasterByID(ctx context.Context, id int64) (*model.Master, error) {
	return db.getMaster(ctx, "id = ?", id)
}

// GetMasterByTelegramID returns a master by their Telegram account.
func (db *DB) GetMasterByTelegramID(ctx context.Context, telegramID int64) (*model.Master, error) {
	return db.getMaster(ctx, "telegram_id = ?", telegramID)
}

// GetMasterByReferralCode resolves the code used in public booking
// links.
func (db *DB) GetMasterByReferralCode(ctx context.Context, code string) (*model.Master, error) {
	return db.getMaster(ctx, "referral_code = ?", code)
}

func (db *DB) getMaster(ctx context.Context, where string, arg any) (*model.Master, error) {
	var m model.Master
	var username, phone, city sql.NullString
	var premiumUntil sql.NullTime
	var referredBy sql.NullInt64
	err := db.QueryRowContext(ctx, `
		SELECT id, telegram_id, telegram_username, name, phone, city, timezone,
		       currency, work_schedule, is_premium, premium_until, referral_code,
		       referred_by_id, is_onboarded, created_at, updated_at
		FROM masters WHERE `+where+` LIMIT 1`, arg,
	).Scan(
		&m.ID, &m.TelegramID, &username, &m.Name, &phone, &city, &m.Timezone,
		&m.Currency, &m.WorkSchedule, &m.IsPremium, &premiumUntil, &m.ReferralCode,
		&referredBy, &m.IsOnboarded, &m.CreatedAt, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.TelegramUsername = username.String
	m.Phone = phone.String
	m.City = city.String
	if premiumUntil.Valid {
		t := premiumUntil.Time
		m.PremiumUntil = &t
	}
	m.ReferredByID = referredBy.Int64
	return &m, nil
}

// UpdateMasterProfile updates the fields collected during onboarding.
func (db *DB) UpdateMasterProfile(ctx context.Context, m *model.Master) error {
	_, err := db.ExecContext(ctx, `
		UPDATE masters
		SET name = ?, phone = ?, city = ?, timezone = ?, currency = ?,
		    is_onboarded = ?, updated_at = ?
		WHERE id = ?`,
		m.Name, m.Phone, m.City, m.Timezone, m.Currency,
		m.IsOnboarded, time.Now().UTC(), m.ID,
	)
	return err
}

// UpdateWorkSchedule replaces the persisted schedule JSON. The caller
// is responsible for invalidating any schedule cache afterwards.
func (db *DB) UpdateWorkSchedule(ctx context.Context, masterID int64, schedule string) error {
	res, err := db.ExecContext(ctx,
		"UPDATE masters SET work_schedule = ?, updated_at = ? WHERE id = ?",
		schedule, time.Now().UTC(), masterID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// SetPremium updates the premium flag and expiry after a subscription
// payment or expiry sweep.
func (db *DB) SetPremium(ctx context.Context, masterID int64, premium bool, until *time.Time) error {
	_, err := db.ExecContext(ctx,
		"UPDATE masters SET is_premium = ?, premium_until = ?, updated_at = ? WHERE id = ?",
		premium, until, time.Now().UTC(), masterID,
	)
	return err
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
