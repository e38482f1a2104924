package model

import "time"

// Subscription plan identifiers.
const (
	PlanTrial   = "trial"
	PlanMonthly = "monthly"
	PlanYearly  = "yearly"
)

// Subscription statuses.
const (
	SubscriptionActive    = "active"
	SubscriptionExpired   = "expired"
	SubscriptionCancelled = "cancelled"
)

// Subscription is a master's paid (or trial) access period.
type Subscription struct {
	ID        int64     `json:"id"`
	MasterID  int64     `json:"master_id"`
	Plan      string    `json:"plan"`
	Status    string    `json:"status"`
	StartsAt  time.Time `json:"starts_at"`
	ExpiresAt time.Time `json:"expires_at"`
	AmountRub int64     `json:"amount_rub"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsCurrent reports whether the subscription covers the given moment.
func (s *Subscription) IsCurrent(now time.Time) bool {
	return s.Status == SubscriptionActive && !now.Before(s.StartsAt) && now.Before(s.ExpiresAt)
}
