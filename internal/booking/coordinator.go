package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"zapisly/internal/events"
	"zapisly/internal/metrics"
	"zapisly/internal/model"
	"zapisly/internal/schedule"
)

// Store is the persistence surface the coordinator needs. *db.DB
// satisfies it.
type Store interface {
	GetMasterByID(ctx context.Context, id int64) (*model.Master, error)
	GetServiceByID(ctx context.Context, id int64) (*model.Service, error)
	GetOrCreateClient(ctx context.Context, masterID int64, name, phone string, telegramID int64, telegramUsername string) (*model.Client, error)
	GetAppointmentByID(ctx context.Context, masterID, id int64) (*model.Appointment, error)
	CreateAppointmentChecked(ctx context.Context, a *model.Appointment, maxActive int) error
	RescheduleAppointmentChecked(ctx context.Context, masterID, appointmentID int64, newStart, newEnd time.Time) (*model.Appointment, error)
	CancelAppointment(ctx context.Context, masterID, id int64, reason string) (*model.Appointment, error)
	CompleteAppointment(ctx context.Context, masterID, id int64, paymentAmount int64) (*model.Appointment, error)
	ListAppointmentsBetween(ctx context.Context, masterID int64, from, to time.Time) ([]model.Appointment, error)
}

// ScheduleSource resolves a master's working hours. The redis cache
// implements it; the coordinator falls back to decoding the persisted
// JSON when no cache is wired.
type ScheduleSource interface {
	WorkingHours(ctx context.Context, master *model.Master) (*schedule.WorkingHours, error)
}

// QuotaPolicy decides the booking quota for a master. Zero means
// unlimited.
type QuotaPolicy interface {
	MaxActiveAppointments(master *model.Master) int
}

// dbScheduleSource decodes the schedule stored on the master row.
type dbScheduleSource struct{}

func (dbScheduleSource) WorkingHours(_ context.Context, master *model.Master) (*schedule.WorkingHours, error) {
	return schedule.DecodeWorkingHours(master.WorkSchedule)
}

// unlimitedQuota is the fallback when no subscription service is wired.
type unlimitedQuota struct{}

func (unlimitedQuota) MaxActiveAppointments(*model.Master) int { return 0 }

// Coordinator owns the booking lifecycle: slot lookup, atomic booking,
// reschedule, cancellation and completion.
type Coordinator struct {
	store     Store
	schedules ScheduleSource
	quota     QuotaPolicy
	bus       *events.Bus
	logger    *zerolog.Logger
	now       func() time.Time
}

func NewCoordinator(store Store, bus *events.Bus, logger *zerolog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		schedules: dbScheduleSource{},
		quota:     unlimitedQuota{},
		bus:       bus,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithScheduleSource routes working-hours lookups through a cache.
func WithScheduleSource(s ScheduleSource) Option {
	return func(c *Coordinator) { c.schedules = s }
}

// WithQuotaPolicy enforces free-tier limits on bookings.
func WithQuotaPolicy(q QuotaPolicy) Option {
	return func(c *Coordinator) { c.quota = q }
}

// WithNow overrides the clock. Tests use it.
func WithNow(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// SlotsRequest identifies one master/service/day combination.
type SlotsRequest struct {
	MasterID  int64
	ServiceID int64
	Date      time.Time // any moment on the requested day, any zone
}

// Slots returns every candidate slot on the requested day in the
// master's timezone, flagged available or not.
func (c *Coordinator) Slots(ctx context.Context, req SlotsRequest) ([]schedule.Slot, error) {
	master, err := c.store.GetMasterByID(ctx, req.MasterID)
	if err != nil {
		return nil, err
	}
	service, err := c.store.GetServiceByID(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}
	if service.MasterID != master.ID || !service.IsActive {
		return nil, model.ErrNotFound
	}
	wh, err := c.schedules.WorkingHours(ctx, master)
	if err != nil {
		return nil, fmt.Errorf("load schedule for master %d: %w", master.ID, err)
	}

	loc := master.Location()
	day := req.Date.In(loc)
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	appointments, err := c.store.ListAppointmentsBetween(ctx, master.ID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	busy := make([]schedule.Busy, len(appointments))
	for i, a := range appointments {
		busy[i] = schedule.Busy{Start: a.StartTime, End: a.EndTime}
	}

	slots := schedule.ComputeSlots(wh, dayStart, service.Duration(), busy, c.now())
	metrics.ObserveSlotsComputed(len(slots))
	return slots, nil
}

// BookRequest carries everything needed to create an appointment.
type BookRequest struct {
	MasterID         int64
	ServiceID        int64
	Start            time.Time
	ClientName       string
	ClientPhone      string
	ClientTelegramID int64
	ClientUsername   string
	Comment          string
	IdempotencyKey   string
	Source           string // "bot", "api", "master"
}

// Book creates an appointment after validating the requested interval
// against the master's schedule. The conflict and quota checks happen
// atomically in storage, so concurrent requests for the same slot
// produce exactly one appointment.
func (c *Coordinator) Book(ctx context.Context, req BookRequest) (*model.Appointment, error) {
	master, err := c.store.GetMasterByID(ctx, req.MasterID)
	if err != nil {
		return nil, err
	}
	service, err := c.store.GetServiceByID(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}
	if service.MasterID != master.ID || !service.IsActive {
		return nil, model.ErrNotFound
	}

	start := req.Start.UTC()
	end := start.Add(service.Duration())
	if err := c.validateInterval(ctx, master, start, end); err != nil {
		return nil, err
	}

	client, err := c.store.GetOrCreateClient(ctx, master.ID, req.ClientName, req.ClientPhone, req.ClientTelegramID, req.ClientUsername)
	if err != nil {
		return nil, err
	}

	a := &model.Appointment{
		MasterID:       master.ID,
		ClientID:       client.ID,
		ServiceID:      service.ID,
		StartTime:      start,
		EndTime:        end,
		Comment:        req.Comment,
		IdempotencyKey: req.IdempotencyKey,
	}
	maxActive := c.quota.MaxActiveAppointments(master)
	if err := c.store.CreateAppointmentChecked(ctx, a, maxActive); err != nil {
		switch err {
		case model.ErrConflict:
			metrics.IncBookingConflict()
		case model.ErrQuotaExceeded:
			metrics.IncQuotaRejection()
		}
		return nil, err
	}

	metrics.IncAppointmentCreated(req.Source)
	c.bus.Publish(events.Event{Type: events.AppointmentCreated, MasterID: master.ID, AppointmentID: a.ID})
	c.logger.Info().
		Int64("master_id", master.ID).
		Int64("appointment_id", a.ID).
		Time("start", start).
		Str("source", req.Source).
		Msg("appointment booked")
	return a, nil
}

// Reschedule moves an active appointment, keeping its service duration.
// The appointment's own interval never counts as a conflict, so a small
// shift within itself succeeds.
func (c *Coordinator) Reschedule(ctx context.Context, masterID, appointmentID int64, newStart time.Time) (*model.Appointment, error) {
	master, err := c.store.GetMasterByID(ctx, masterID)
	if err != nil {
		return nil, err
	}
	current, err := c.store.GetAppointmentByID(ctx, masterID, appointmentID)
	if err != nil {
		return nil, err
	}

	start := newStart.UTC()
	end := start.Add(current.EndTime.Sub(current.StartTime))
	if err := c.validateInterval(ctx, master, start, end); err != nil {
		return nil, err
	}

	moved, err := c.store.RescheduleAppointmentChecked(ctx, masterID, appointmentID, start, end)
	if err != nil {
		if err == model.ErrConflict {
			metrics.IncBookingConflict()
		}
		return nil, err
	}

	metrics.IncAppointmentRescheduled()
	c.bus.Publish(events.Event{Type: events.AppointmentRescheduled, MasterID: masterID, AppointmentID: appointmentID})
	c.logger.Info().
		Int64("master_id", masterID).
		Int64("appointment_id", appointmentID).
		Time("new_start", start).
		Msg("appointment rescheduled")
	return moved, nil
}

// Cancel frees an appointment's slot. Cancelling twice returns
// model.ErrInvalidTransition.
func (c *Coordinator) Cancel(ctx context.Context, masterID, appointmentID int64, reason string) (*model.Appointment, error) {
	a, err := c.store.CancelAppointment(ctx, masterID, appointmentID, reason)
	if err != nil {
		return nil, err
	}
	metrics.IncAppointmentCancelled()
	c.bus.Publish(events.Event{Type: events.AppointmentCancelled, MasterID: masterID, AppointmentID: appointmentID})
	c.logger.Info().
		Int64("master_id", masterID).
		Int64("appointment_id", appointmentID).
		Str("reason", reason).
		Msg("appointment cancelled")
	return a, nil
}

// Complete finishes an appointment, recording the payment.
func (c *Coordinator) Complete(ctx context.Context, masterID, appointmentID int64, paymentAmount int64) (*model.Appointment, error) {
	a, err := c.store.CompleteAppointment(ctx, masterID, appointmentID, paymentAmount)
	if err != nil {
		return nil, err
	}
	c.bus.Publish(events.Event{Type: events.AppointmentCompleted, MasterID: masterID, AppointmentID: appointmentID})
	return a, nil
}

// PublishScheduleUpdated announces a working-hours change so
// subscribers (exports, sheets sync) can react.
func (c *Coordinator) PublishScheduleUpdated(masterID int64) {
	c.bus.Publish(events.Event{Type: events.ScheduleUpdated, MasterID: masterID})
}

// validateInterval rejects intervals in the past or outside the
// master's working hours. Times are checked in the master's zone.
func (c *Coordinator) validateInterval(ctx context.Context, master *model.Master, start, end time.Time) error {
	if start.Before(c.now()) {
		return fmt.Errorf("%w: start time is in the past", schedule.ErrValidation)
	}

	wh, err := c.schedules.WorkingHours(ctx, master)
	if err != nil {
		return fmt.Errorf("load schedule for master %d: %w", master.ID, err)
	}

	loc := master.Location()
	localStart := start.In(loc)
	localEnd := end.In(loc)
	midnight := time.Date(localStart.Year(), localStart.Month(), localStart.Day(), 0, 0, 0, 0, loc)
	startMin := int(localStart.Sub(midnight) / time.Minute)
	endMin := int(localEnd.Sub(midnight) / time.Minute)

	if !wh.Covers(midnight, startMin, endMin) {
		return fmt.Errorf("%w: interval %s-%s is outside working hours", schedule.ErrValidation,
			localStart.Format("15:04"), localEnd.Format("15:04"))
	}
	return nil
}
