package model

import "time"

// Master is a beauty-service provider running their appointment book
// through the bot.
type Master struct {
	ID               int64      `json:"id"`
	TelegramID       int64      `json:"telegram_id"`
	TelegramUsername string     `json:"telegram_username,omitempty"`
	Name             string     `json:"name"`
	Phone            string     `json:"phone,omitempty"`
	City             string     `json:"city,omitempty"`
	Timezone         string     `json:"timezone"` // IANA name, e.g. "Europe/Moscow"
	Currency         string     `json:"currency"`
	WorkSchedule     string     `json:"work_schedule"` // serialized schedule.WorkingHours
	IsPremium        bool       `json:"is_premium"`
	PremiumUntil     *time.Time `json:"premium_until,omitempty"`
	ReferralCode     string     `json:"referral_code"`
	ReferredByID     int64      `json:"referred_by_id,omitempty"`
	IsOnboarded      bool       `json:"is_onboarded"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Location resolves the master's timezone, falling back to UTC on a bad
// or empty value.
func (m *Master) Location() *time.Location {
	if m.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(m.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
