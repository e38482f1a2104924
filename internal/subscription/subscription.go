package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"zapisly/internal/events"
	"zapisly/internal/model"
)

// Plan describes a purchasable access period.
type Plan struct {
	ID       string
	Title    string
	Days     int
	PriceRub int64
}

// Plans available for purchase. The trial is granted automatically at
// registration and cannot be bought.
var Plans = map[string]Plan{
	model.PlanTrial:   {ID: model.PlanTrial, Title: "Пробный период", Days: 14, PriceRub: 0},
	model.PlanMonthly: {ID: model.PlanMonthly, Title: "Месяц", Days: 30, PriceRub: 990},
	model.PlanYearly:  {ID: model.PlanYearly, Title: "Год", Days: 365, PriceRub: 9900},
}

// Limits caps what a free-tier master can hold at once.
type Limits struct {
	MaxActiveAppointments int
	MaxActiveServices     int
}

// Store is the persistence surface the subscription service needs.
type Store interface {
	GetMasterByID(ctx context.Context, id int64) (*model.Master, error)
	CreateSubscription(ctx context.Context, s *model.Subscription) error
	GetCurrentSubscription(ctx context.Context, masterID int64) (*model.Subscription, error)
	ExpireSubscriptions(ctx context.Context) (int, error)
	GetReferralByReferred(ctx context.Context, referredID int64) (*model.Referral, error)
	ActivateReferral(ctx context.Context, referredID int64, commissionRub int64) (*model.Referral, error)
}

// Service handles plan purchases, the free-tier quota and the periodic
// expiry sweep.
type Service struct {
	store  Store
	limits Limits
	bus    *events.Bus
	logger *zerolog.Logger
	now    func() time.Time
}

func NewService(store Store, limits Limits, bus *events.Bus, logger *zerolog.Logger) *Service {
	return &Service{
		store:  store,
		limits: limits,
		bus:    bus,
		logger: logger,
		now:    time.Now,
	}
}

// MaxActiveAppointments returns the booking quota for a master.
// Zero means unlimited.
func (s *Service) MaxActiveAppointments(master *model.Master) int {
	if s.premiumAt(master, s.now()) {
		return 0
	}
	return s.limits.MaxActiveAppointments
}

// MaxActiveServices returns the catalog quota for a master.
// Zero means unlimited.
func (s *Service) MaxActiveServices(master *model.Master) int {
	if s.premiumAt(master, s.now()) {
		return 0
	}
	return s.limits.MaxActiveServices
}

func (s *Service) premiumAt(master *model.Master, now time.Time) bool {
	if !master.IsPremium {
		return false
	}
	// A stale premium flag does not extend the quota past expiry even
	// if the sweep has not run yet.
	return master.PremiumUntil == nil || now.Before(*master.PremiumUntil)
}

// StartTrial grants the trial period to a newly onboarded master.
func (s *Service) StartTrial(ctx context.Context, masterID int64) (*model.Subscription, error) {
	plan := Plans[model.PlanTrial]
	now := s.now().UTC()
	sub := &model.Subscription{
		MasterID:  masterID,
		Plan:      plan.ID,
		StartsAt:  now,
		ExpiresAt: now.AddDate(0, 0, plan.Days),
	}
	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("start trial: %w", err)
	}
	s.logger.Info().Int64("master_id", masterID).Time("expires_at", sub.ExpiresAt).Msg("trial started")
	return sub, nil
}

// Purchase records a paid plan, extends premium and credits the
// referrer's commission on the master's first payment.
func (s *Service) Purchase(ctx context.Context, masterID int64, planID string) (*model.Subscription, error) {
	plan, ok := Plans[planID]
	if !ok || plan.PriceRub == 0 {
		return nil, fmt.Errorf("unknown plan %q: %w", planID, model.ErrNotFound)
	}

	now := s.now().UTC()
	startsAt := now
	// Buying early stacks onto the current period instead of eating it.
	if current, err := s.store.GetCurrentSubscription(ctx, masterID); err == nil && current.ExpiresAt.After(now) {
		startsAt = current.ExpiresAt
	}

	sub := &model.Subscription{
		MasterID:  masterID,
		Plan:      plan.ID,
		StartsAt:  startsAt,
		ExpiresAt: startsAt.AddDate(0, 0, plan.Days),
		AmountRub: plan.PriceRub,
	}
	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("purchase %s: %w", planID, err)
	}

	if ref, err := s.store.GetReferralByReferred(ctx, masterID); err == nil && ref.Status == model.ReferralPending {
		commission := plan.PriceRub * int64(ref.CommissionPercent) / 100
		if _, err := s.store.ActivateReferral(ctx, masterID, commission); err != nil {
			s.logger.Error().Err(err).Int64("master_id", masterID).Msg("referral activation failed")
		} else {
			s.logger.Info().
				Int64("referrer_id", ref.ReferrerID).
				Int64("commission_rub", commission).
				Msg("referral commission credited")
		}
	}

	s.bus.Publish(events.Event{Type: events.SubscriptionPaid, MasterID: masterID})
	s.logger.Info().
		Int64("master_id", masterID).
		Str("plan", planID).
		Time("expires_at", sub.ExpiresAt).
		Msg("subscription purchased")
	return sub, nil
}

// RunExpirySweep expires lapsed subscriptions on a ticker until ctx is
// cancelled.
func (s *Service) RunExpirySweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.store.ExpireSubscriptions(ctx)
			if err != nil {
				s.logger.Error().Err(err).Msg("subscription expiry sweep failed")
				continue
			}
			if n > 0 {
				s.logger.Info().Int("expired", n).Msg("subscriptions expired")
			}
		}
	}
}
