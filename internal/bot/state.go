package bot

import "sync"

type step string

const (
	stepNone step = "none"

	// Onboarding.
	stepAskName     step = "ask_name"
	stepAskCity     step = "ask_city"
	stepAskTimezone step = "ask_timezone"

	// Manual appointment creation by the master.
	stepClientName  step = "client_name"
	stepClientPhone step = "client_phone"
	stepService     step = "service"
	stepDate        step = "date"
	stepSlot        step = "slot"
	stepConfirm     step = "confirm"

	// Service catalog editing.
	stepServiceName     step = "service_name"
	stepServiceDuration step = "service_duration"
	stepServicePrice    step = "service_price"

	// Completing an appointment with a payment amount.
	stepPaymentAmount step = "payment_amount"
)

// AppointmentDraft accumulates a manual booking as the master walks the
// dialog.
type AppointmentDraft struct {
	ClientName  string
	ClientPhone string
	ServiceID   int64
	ServiceName string
	Date        string // YYYY-MM-DD in the master's timezone
	StartTime   string // HH:MM
}

// ServiceDraft accumulates a new catalog entry.
type ServiceDraft struct {
	Name            string
	DurationMinutes int
}

type userState struct {
	Step          step
	Draft         AppointmentDraft
	ServiceDraft  ServiceDraft
	AppointmentID int64 // target of a pending complete/payment dialog
	ReferralCode  string
}

type stateStore struct {
	mu sync.Mutex
	m  map[int64]*userState
}

func newStateStore() *stateStore {
	return &stateStore{m: make(map[int64]*userState)}
}

func (s *stateStore) get(userID int64) *userState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.m[userID]
	if st == nil {
		st = &userState{Step: stepNone}
		s.m[userID] = st
	}
	return st
}

func (s *stateStore) reset(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, userID)
}
