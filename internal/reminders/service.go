package reminders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"zapisly/internal/metrics"
	"zapisly/internal/model"
)

// Store is the persistence surface the reminder loop needs.
type Store interface {
	ListAppointmentsNeedingReminder(ctx context.Context, from, to time.Time) ([]model.Appointment, error)
	MarkReminderSent(ctx context.Context, id int64) error
	GetMasterByID(ctx context.Context, id int64) (*model.Master, error)
	GetClientByID(ctx context.Context, id int64) (*model.Client, error)
	GetServiceByID(ctx context.Context, id int64) (*model.Service, error)
}

// Notifier delivers a reminder message to a Telegram user.
type Notifier interface {
	SendReminder(ctx context.Context, chatID int64, text string) error
}

// Config holds reminder loop settings.
type Config struct {
	// PollInterval is how often to check for upcoming appointments.
	PollInterval time.Duration

	// LeadTime is how long before the appointment the client reminder
	// goes out.
	LeadTime time.Duration

	// RatePerSecond caps Telegram sends. Default: 20.
	RatePerSecond int

	// MaxConcurrent limits parallel sends. Default: 10.
	MaxConcurrent int
}

func (c *Config) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Minute
	}
	if c.LeadTime <= 0 {
		c.LeadTime = 24 * time.Hour
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 20
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 10
	}
}

// Service sends appointment reminders to clients who booked through the
// bot. Clients without a Telegram account are skipped; the master sees
// their schedule in the cabinet anyway.
type Service struct {
	config   Config
	store    Store
	notifier Notifier
	limiter  *rate.Limiter
	logger   *zerolog.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func NewService(config Config, store Store, notifier Notifier, logger *zerolog.Logger) *Service {
	config.defaults()
	return &Service{
		config:   config,
		store:    store,
		notifier: notifier,
		limiter:  rate.NewLimiter(rate.Limit(config.RatePerSecond), config.RatePerSecond),
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the reminder check loop.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()

	s.logger.Info().
		Dur("poll_interval", s.config.PollInterval).
		Dur("lead_time", s.config.LeadTime).
		Msg("reminder service started")
}

// Stop gracefully stops the reminder service.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info().Msg("reminder service stopped")
}

func (s *Service) loop() {
	defer s.wg.Done()

	s.sweep()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Service) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	now := time.Now().UTC()
	// Anything starting within the lead time is due; the sent flag
	// keeps repeat sweeps quiet.
	due, err := s.store.ListAppointmentsNeedingReminder(ctx, now, now.Add(s.config.LeadTime))
	if err != nil {
		s.logger.Error().Err(err).Msg("reminder sweep query failed")
		return
	}
	if len(due) == 0 {
		return
	}
	s.logger.Debug().Int("count", len(due)).Msg("appointments due for reminders")

	sem := make(chan struct{}, s.config.MaxConcurrent)
	var wg sync.WaitGroup
	for _, a := range due {
		wg.Add(1)
		sem <- struct{}{}
		go func(a model.Appointment) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.remind(ctx, a); err != nil {
				metrics.IncReminderSent("error")
				s.logger.Error().Err(err).Int64("appointment_id", a.ID).Msg("reminder failed")
			}
		}(a)
	}
	wg.Wait()
}

func (s *Service) remind(ctx context.Context, a model.Appointment) error {
	client, err := s.store.GetClientByID(ctx, a.ClientID)
	if err != nil {
		return err
	}
	if client.TelegramID == 0 {
		// Manually added client, nowhere to deliver. Mark so the sweep
		// stops picking it up.
		metrics.IncReminderSent("skipped")
		return s.store.MarkReminderSent(ctx, a.ID)
	}

	master, err := s.store.GetMasterByID(ctx, a.MasterID)
	if err != nil {
		return err
	}
	service, err := s.store.GetServiceByID(ctx, a.ServiceID)
	if err != nil {
		return err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	local := a.StartTime.In(master.Location())
	text := fmt.Sprintf(
		"Напоминание: %s в %s у вас запись «%s» к мастеру %s.",
		dayWord(local, time.Now().In(master.Location())), local.Format("15:04"), service.Name, master.Name,
	)
	if err := s.notifier.SendReminder(ctx, client.TelegramID, text); err != nil {
		return err
	}

	if err := s.store.MarkReminderSent(ctx, a.ID); err != nil {
		// Notification went out; log and move on rather than resend.
		s.logger.Error().Err(err).Int64("appointment_id", a.ID).Msg("mark reminder sent failed")
	}
	metrics.IncReminderSent("ok")
	s.logger.Info().
		Int64("appointment_id", a.ID).
		Int64("client_id", client.ID).
		Msg("reminder sent")
	return nil
}

// dayWord names the appointment day relative to now, both in the
// master's timezone. With a short lead window the appointment is
// usually the same day, so "завтра" cannot be hardcoded.
func dayWord(start, now time.Time) string {
	switch start.Format("2006-01-02") {
	case now.Format("2006-01-02"):
		return "сегодня"
	case now.AddDate(0, 0, 1).Format("2006-01-02"):
		return "завтра"
	default:
		return start.Format("02.01")
	}
}
