package model

import "time"

// Appointment statuses.
const (
	StatusScheduled = "scheduled"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

// ActiveStatuses are the statuses that block a time slot.
var ActiveStatuses = []string{StatusScheduled, StatusConfirmed}

// Appointment is a client booking in a master's book. Times are stored
// in UTC; end time is derived from the service duration at creation.
type Appointment struct {
	ID                 int64     `json:"id"`
	MasterID           int64     `json:"master_id"`
	ClientID           int64     `json:"client_id"`
	ServiceID          int64     `json:"service_id"`
	StartTime          time.Time `json:"start_time"`
	EndTime            time.Time `json:"end_time"`
	Status             string    `json:"status"`
	Comment            string    `json:"comment,omitempty"`
	CancellationReason string    `json:"cancellation_reason,omitempty"`
	PaymentAmount      *int64    `json:"payment_amount,omitempty"`
	IdempotencyKey     string    `json:"idempotency_key,omitempty"`
	RescheduledFromID  int64     `json:"rescheduled_from_id,omitempty"`
	ReminderSent       bool      `json:"reminder_sent,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// IsActive reports whether the appointment still occupies its slot.
func (a *Appointment) IsActive() bool {
	return a.Status == StatusScheduled || a.Status == StatusConfirmed
}

// IsFinished reports whether the appointment reached a terminal state
// that cannot be cancelled or rescheduled.
func (a *Appointment) IsFinished() bool {
	return a.Status == StatusCompleted || a.Status == StatusNoShow
}
