package model

import "time"

// Referral statuses.
const (
	ReferralPending   = "pending"
	ReferralActivated = "activated"
	ReferralExpired   = "expired"
)

// Referral tracks one master inviting another. A commission accrues to
// the referrer when the invited master pays for a subscription.
type Referral struct {
	ID                int64      `json:"id"`
	ReferrerID        int64      `json:"referrer_id"`
	ReferredID        int64      `json:"referred_id"`
	Status            string     `json:"status"`
	CommissionPercent int        `json:"commission_percent"`
	CommissionRub     int64      `json:"commission_rub"`
	ActivatedAt       *time.Time `json:"activated_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
