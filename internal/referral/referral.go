package referral

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"zapisly/internal/model"
)

// Store is the persistence surface the referral service needs.
type Store interface {
	GetMasterByReferralCode(ctx context.Context, code string) (*model.Master, error)
	CreateReferral(ctx context.Context, r *model.Referral) error
	ListReferralsByReferrer(ctx context.Context, referrerID int64) ([]model.Referral, error)
}

// DefaultCommissionPercent of the referred master's first payment goes
// to the referrer.
const DefaultCommissionPercent = 20

// Service resolves referral deep links and tracks who invited whom.
type Service struct {
	store  Store
	logger *zerolog.Logger
}

func NewService(store Store, logger *zerolog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// NewCode generates a compact referral code for a new master.
func NewCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Link builds the t.me deep link a master shares to invite colleagues.
func Link(botName, code string) string {
	return fmt.Sprintf("https://t.me/%s?start=ref_%s", botName, code)
}

// ParseStartPayload extracts the referral code from a /start payload,
// returning "" when the payload is not a referral link.
func ParseStartPayload(payload string) string {
	if code, ok := strings.CutPrefix(payload, "ref_"); ok {
		return code
	}
	return ""
}

// Attach records that a newly registered master came through a referral
// code. Self-referrals and unknown codes are ignored silently so a bad
// link never blocks registration.
func (s *Service) Attach(ctx context.Context, referredID int64, code string) {
	if code == "" {
		return
	}
	referrer, err := s.store.GetMasterByReferralCode(ctx, code)
	if err != nil {
		s.logger.Debug().Str("code", code).Msg("referral code not found")
		return
	}
	if referrer.ID == referredID {
		return
	}
	r := &model.Referral{
		ReferrerID:        referrer.ID,
		ReferredID:        referredID,
		CommissionPercent: DefaultCommissionPercent,
	}
	if err := s.store.CreateReferral(ctx, r); err != nil {
		s.logger.Warn().Err(err).Int64("referred_id", referredID).Msg("referral create failed")
		return
	}
	s.logger.Info().
		Int64("referrer_id", referrer.ID).
		Int64("referred_id", referredID).
		Msg("referral attached")
}

// Stats summarizes a master's referral earnings.
type Stats struct {
	Invited      int
	Activated    int
	EarnedRub    int64
	PendingCount int
}

// StatsFor aggregates a master's referral records.
func (s *Service) StatsFor(ctx context.Context, referrerID int64) (Stats, error) {
	list, err := s.store.ListReferralsByReferrer(ctx, referrerID)
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	st.Invited = len(list)
	for _, r := range list {
		switch r.Status {
		case model.ReferralActivated:
			st.Activated++
			st.EarnedRub += r.CommissionRub
		case model.ReferralPending:
			st.PendingCount++
		}
	}
	return st, nil
}
