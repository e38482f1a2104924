package db

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapisly/internal/model"
	"zapisly/internal/schedule"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

// seedMaster creates a master with one client and one 60-minute service
// and returns all three.
func seedMaster(t *testing.T, database *DB, telegramID int64) (*model.Master, *model.Client, *model.Service) {
	t.Helper()
	ctx := context.Background()

	m := &model.Master{
		TelegramID:   telegramID,
		Name:         "Anna",
		ReferralCode: "ref-" + time.Now().Format("150405.000000000") + "-" + string(rune('a'+telegramID%26)),
		IsOnboarded:  true,
	}
	require.NoError(t, database.CreateMaster(ctx, m))

	c := &model.Client{MasterID: m.ID, Name: "Olga", Phone: "+79001234567"}
	require.NoError(t, database.CreateClient(ctx, c))

	s := &model.Service{MasterID: m.ID, Name: "Manicure", DurationMinutes: 60, Price: 2000, IsActive: true}
	require.NoError(t, database.CreateService(ctx, s))

	return m, c, s
}

func TestCreateAndGetMaster(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	m, _, _ := seedMaster(t, database, 100)
	assert.Equal(t, "Europe/Moscow", m.Timezone, "timezone defaults on create")
	assert.Equal(t, "{}", m.WorkSchedule)

	got, err := database.GetMasterByTelegramID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, "Anna", got.Name)

	byCode, err := database.GetMasterByReferralCode(ctx, m.ReferralCode)
	require.NoError(t, err)
	assert.Equal(t, m.ID, byCode.ID)

	_, err = database.GetMasterByTelegramID(ctx, 999)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestUpdateWorkSchedule(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	m, _, _ := seedMaster(t, database, 101)

	wh := schedule.DefaultWorkingHours()
	encoded, err := wh.Encode()
	require.NoError(t, err)
	require.NoError(t, database.UpdateWorkSchedule(ctx, m.ID, encoded))

	got, err := database.GetMasterByID(ctx, m.ID)
	require.NoError(t, err)
	decoded, err := schedule.DecodeWorkingHours(got.WorkSchedule)
	require.NoError(t, err)
	assert.NotNil(t, decoded.IntervalsFor(time.Date(2030, 6, 3, 0, 0, 0, 0, time.UTC))) // a Monday

	assert.ErrorIs(t, database.UpdateWorkSchedule(ctx, 9999, encoded), model.ErrNotFound)
}

func TestServiceDurationValidation(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	m, _, _ := seedMaster(t, database, 102)

	for _, minutes := range []int{0, -30, 45, 17} {
		s := &model.Service{MasterID: m.ID, Name: "Bad", DurationMinutes: minutes, IsActive: true}
		assert.ErrorIs(t, database.CreateService(ctx, s), schedule.ErrValidation, "duration %d", minutes)
	}

	s := &model.Service{MasterID: m.ID, Name: "Pedicure", DurationMinutes: 90, Price: 3000, IsActive: true}
	require.NoError(t, database.CreateService(ctx, s))
	assert.Equal(t, 90*time.Minute, s.Duration())
}

func TestGetOrCreateClient(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	m, existing, _ := seedMaster(t, database, 103)

	// Same phone returns the existing record and refreshes Telegram info.
	c, err := database.GetOrCreateClient(ctx, m.ID, "Olga K", existing.Phone, 555, "olga_k")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, c.ID)
	assert.EqualValues(t, 555, c.TelegramID)

	// Unknown phone creates a new client.
	c2, err := database.GetOrCreateClient(ctx, m.ID, "Vera", "+79009998877", 0, "")
	require.NoError(t, err)
	assert.NotEqual(t, existing.ID, c2.ID)
}

func bookingAt(m *model.Master, c *model.Client, s *model.Service, start time.Time) *model.Appointment {
	return &model.Appointment{
		MasterID:  m.ID,
		ClientID:  c.ID,
		ServiceID: s.ID,
		StartTime: start,
		EndTime:   start.Add(s.Duration()),
	}
}

func TestCreateAppointmentConflict(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	m, c, s := seedMaster(t, database, 104)
	start := time.Date(2030, 6, 3, 10, 0, 0, 0, time.UTC)

	require.NoError(t, database.CreateAppointmentChecked(ctx, bookingAt(m, c, s, start), 0))

	t.Run("same interval conflicts", func(t *testing.T) {
		err := database.CreateAppointmentChecked(ctx, bookingAt(m, c, s, start), 0)
		assert.ErrorIs(t, err, model.ErrConflict)
	})

	t.Run("partial overlap conflicts", func(t *testing.T) {
		err := database.CreateAppointmentChecked(ctx, bookingAt(m, c, s, start.Add(30*time.Minute)), 0)
		assert.ErrorIs(t, err, model.ErrConflict)
	})

	t.Run("touching boundary does not conflict", func(t *testing.T) {
		before := bookingAt(m, c, s, start.Add(-time.Hour)) // ends exactly at start
		assert.NoError(t, database.CreateAppointmentChecked(ctx, before, 0))
		after := bookingAt(m, c, s, start.Add(time.Hour)) // starts exactly at end
		assert.NoError(t, database.CreateAppointmentChecked(ctx, after, 0))
	})

	t.Run("cancelled appointment frees the slot", func(t *testing.T) {
		farStart := start.AddDate(0, 0, 1)
		a := bookingAt(m, c, s, farStart)
		require.NoError(t, database.CreateAppointmentChecked(ctx, a, 0))
		_, err := database.CancelAppointment(ctx, m.ID, a.ID, "client asked")
		require.NoError(t, err)
		assert.NoError(t, database.CreateAppointmentChecked(ctx, bookingAt(m, c, s, farStart), 0))
	})
}

func TestActiveStartUniqueIndex(t *testing.T) {
	// A raw insert that skips the transactional overlap check still
	// cannot produce a second active appointment at the same start.
	database := newTestDB(t)
	ctx := context.Background()
	m, c, s := seedMaster(t, database, 110)
	start := time.Date(2030, 6, 3, 10, 0, 0, 0, time.UTC)

	insert := func(status string) error {
		_, err := database.ExecContext(ctx, `
			INSERT INTO appointments (master_id, client_id, service_id, start_time, end_time, status)
			VALUES (?, ?, ?, ?, ?, ?)`,
			m.ID, c.ID, s.ID, start, start.Add(s.Duration()), status,
		)
		return err
	}

	require.NoError(t, insert(model.StatusScheduled))

	err := insert(model.StatusConfirmed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNIQUE constraint failed")

	// Terminal rows leave the index, so history does not block rebooking.
	assert.NoError(t, insert(model.StatusCancelled))
}

func TestCreateAppointmentQuota(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	m, c, s := seedMaster(t, database, 105)
	start := time.Date(2030, 6, 3, 9, 0, 0, 0, time.UTC)

	require.NoError(t, database.CreateAppointmentChecked(ctx, bookingAt(m, c, s, start), 2))
	require.NoError(t, database.CreateAppointmentChecked(ctx, bookingAt(m, c, s, start.Add(2*time.Hour)), 2))

	err := database.CreateAppointmentChecked(ctx, bookingAt(m, c, s, start.Add(4*time.Hour)), 2)
	assert.ErrorIs(t, err, model.ErrQuotaExceeded)

	// Unlimited quota accepts the same request.
	assert.NoError(t, database.CreateAppointmentChecked(ctx, bookingAt(m, c, s, start.Add(4*time.Hour)), 0))
}

func TestCreateAppointmentIdempotencyKey(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	m, c, s := seedMaster(t, database, 106)
	start := time.Date(2030, 6, 3, 9, 0, 0, 0, time.UTC)

	a := bookingAt(m, c, s, start)
	a.IdempotencyKey = "req-abc"
	require.NoError(t, database.CreateAppointmentChecked(ctx, a, 0))

	retry := bookingAt(m, c, s, start.Add(3*time.Hour)) // different slot, same key
	retry.IdempotencyKey = "req-abc"
	assert.ErrorIs(t, database.CreateAppointmentChecked(ctx, retry, 0), model.ErrConflict)
}

func TestConcurrentDoubleBooking(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	m, c, s := seedMaster(t, database, 107)
	start := time.Date(2030, 6, 3, 11, 0, 0, 0, time.UTC)

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- database.CreateAppointmentChecked(ctx, bookingAt(m, c, s, start), 0)
		}()
	}
	wg.Wait()
	close(results)

	var won, conflicted int
	for err := range results {
		switch {
		case err == nil:
			won++
		case errors.Is(err, model.ErrConflict):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won, "exactly one writer wins the slot")
	assert.Equal(t, workers-1, conflicted)

	busy, err := database.ListAppointmentsBetween(ctx, m.ID, start.Add(-time.Hour), start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, busy, 1)
}

func TestRescheduleExcludesSelf(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	m, c, s := seedMaster(t, database, 108)
	start := time.Date(2030, 6, 3, 10, 0, 0, 0, time.UTC)

	a := bookingAt(m, c, s, start)
	require.NoError(t, database.CreateAppointmentChecked(ctx, a, 0))

	t.Run("shift within own interval succeeds", func(t *testing.T) {
		moved, err := database.RescheduleAppointmentChecked(ctx, m.ID, a.ID, start.Add(30*time.Minute), start.Add(90*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, start.Add(30*time.Minute), moved.StartTime)
	})

	t.Run("collision with another appointment conflicts", func(t *testing.T) {
		other := bookingAt(m, c, s, start.Add(3*time.Hour))
		require.NoError(t, database.CreateAppointmentChecked(ctx, other, 0))
		_, err := database.RescheduleAppointmentChecked(ctx, m.ID, a.ID, other.StartTime, other.EndTime)
		assert.ErrorIs(t, err, model.ErrConflict)
	})

	t.Run("missing appointment", func(t *testing.T) {
		_, err := database.RescheduleAppointmentChecked(ctx, m.ID, 9999, start, start.Add(time.Hour))
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("cancelled appointment cannot move", func(t *testing.T) {
		victim := bookingAt(m, c, s, start.AddDate(0, 0, 1))
		require.NoError(t, database.CreateAppointmentChecked(ctx, victim, 0))
		_, err := database.CancelAppointment(ctx, m.ID, victim.ID, "")
		require.NoError(t, err)
		_, err = database.RescheduleAppointmentChecked(ctx, m.ID, victim.ID, start.AddDate(0, 0, 2), start.AddDate(0, 0, 2).Add(time.Hour))
		assert.ErrorIs(t, err, model.ErrInvalidTransition)
	})
}

func TestStatusTransitions(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	m, c, s := seedMaster(t, database, 109)
	start := time.Date(2030, 6, 3, 10, 0, 0, 0, time.UTC)

	a := bookingAt(m, c, s, start)
	require.NoError(t, database.CreateAppointmentChecked(ctx, a, 0))

	confirmed, err := database.UpdateAppointmentStatus(ctx, m.ID, a.ID, model.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, confirmed.Status)

	// Confirmed back to scheduled is not a valid move.
	_, err = database.UpdateAppointmentStatus(ctx, m.ID, a.ID, model.StatusScheduled)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	done, err := database.CompleteAppointment(ctx, m.ID, a.ID, 2000)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, done.Status)
	require.NotNil(t, done.PaymentAmount)
	assert.EqualValues(t, 2000, *done.PaymentAmount)

	// Terminal status rejects everything.
	_, err = database.CancelAppointment(ctx, m.ID, a.ID, "too late")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	// Completion bumped the client's stats in the same transaction.
	client, err := database.GetClientByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, client.TotalVisits)
	assert.EqualValues(t, 2000, client.TotalSpent)
	require.NotNil(t, client.LastVisit)
}

func TestSubscriptionLifecycle(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	m, _, _ := seedMaster(t, database, 110)

	now := time.Now().UTC()
	sub := &model.Subscription{
		MasterID:  m.ID,
		Plan:      model.PlanMonthly,
		StartsAt:  now,
		ExpiresAt: now.Add(30 * 24 * time.Hour),
		AmountRub: 990,
	}
	require.NoError(t, database.CreateSubscription(ctx, sub))

	got, err := database.GetCurrentSubscription(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanMonthly, got.Plan)
	assert.True(t, got.IsCurrent(now.Add(time.Hour)))

	master, err := database.GetMasterByID(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, master.IsPremium, "premium flag flips with the subscription")

	// Force-expire and sweep.
	_, err = database.Exec("UPDATE subscriptions SET expires_at = ? WHERE id = ?", now.Add(-time.Hour), sub.ID)
	require.NoError(t, err)
	expired, err := database.ExpireSubscriptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	master, err = database.GetMasterByID(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, master.IsPremium)
	_, err = database.GetCurrentSubscription(ctx, m.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestReferralActivation(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	referrer, _, _ := seedMaster(t, database, 111)
	referred, _, _ := seedMaster(t, database, 112)

	r := &model.Referral{ReferrerID: referrer.ID, ReferredID: referred.ID, CommissionPercent: 20}
	require.NoError(t, database.CreateReferral(ctx, r))
	assert.Equal(t, model.ReferralPending, r.Status)

	activated, err := database.ActivateReferral(ctx, referred.ID, 198)
	require.NoError(t, err)
	assert.Equal(t, model.ReferralActivated, activated.Status)
	assert.EqualValues(t, 198, activated.CommissionRub)
	require.NotNil(t, activated.ActivatedAt)

	// Second activation is rejected.
	_, err = database.ActivateReferral(ctx, referred.ID, 198)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	list, err := database.ListReferralsByReferrer(ctx, referrer.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, referred.ID, list[0].ReferredID)
}

func TestBackup(t *testing.T) {
	database := newTestDB(t)
	seedMaster(t, database, 113)

	dest := filepath.Join(t.TempDir(), "backups", "snapshot.db")
	require.NoError(t, database.Backup(dest))

	restored, err := NewDB(dest)
	require.NoError(t, err)
	defer restored.Close()

	m, err := restored.GetMasterByTelegramID(context.Background(), 113)
	require.NoError(t, err)
	assert.Equal(t, "Anna", m.Name)
}
