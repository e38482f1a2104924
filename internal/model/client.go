package model

import "time"

// Client belongs to exactly one master's client book.
type Client struct {
	ID               int64      `json:"id"`
	MasterID         int64      `json:"master_id"`
	TelegramID       int64      `json:"telegram_id,omitempty"`
	TelegramUsername string     `json:"telegram_username,omitempty"`
	Name             string     `json:"name"`
	Phone            string     `json:"phone,omitempty"`
	Comment          string     `json:"comment,omitempty"`
	TotalVisits      int        `json:"total_visits"`
	TotalSpent       int64      `json:"total_spent"`
	LastVisit        *time.Time `json:"last_visit,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
