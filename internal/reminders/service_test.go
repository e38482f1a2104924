package reminders

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapisly/internal/model"
)

// fakeStore keeps everything in maps guarded by one mutex.
type fakeStore struct {
	mu           sync.Mutex
	appointments map[int64]*model.Appointment
	masters      map[int64]*model.Master
	clients      map[int64]*model.Client
	services     map[int64]*model.Service
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		appointments: make(map[int64]*model.Appointment),
		masters:      make(map[int64]*model.Master),
		clients:      make(map[int64]*model.Client),
		services:     make(map[int64]*model.Service),
	}
}

func (f *fakeStore) ListAppointmentsNeedingReminder(_ context.Context, from, to time.Time) ([]model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Appointment
	for _, a := range f.appointments {
		if a.IsActive() && !a.ReminderSent && !a.StartTime.Before(from) && a.StartTime.Before(to) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkReminderSent(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.appointments[id]; ok {
		a.ReminderSent = true
	}
	return nil
}

func (f *fakeStore) GetMasterByID(_ context.Context, id int64) (*model.Master, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.masters[id]; ok {
		return m, nil
	}
	return nil, model.ErrNotFound
}

func (f *fakeStore) GetClientByID(_ context.Context, id int64) (*model.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.clients[id]; ok {
		return c, nil
	}
	return nil, model.ErrNotFound
}

func (f *fakeStore) GetServiceByID(_ context.Context, id int64) (*model.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.services[id]; ok {
		return s, nil
	}
	return nil, model.ErrNotFound
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent map[int64][]string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sent: make(map[int64][]string)}
}

func (f *fakeNotifier) SendReminder(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[chatID] = append(f.sent[chatID], text)
	return nil
}

func (f *fakeNotifier) sentTo(chatID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent[chatID])
}

func (f *fakeNotifier) lastText(chatID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.sent[chatID]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

func seed(store *fakeStore, start time.Time, clientTelegramID int64) *model.Appointment {
	store.masters[1] = &model.Master{ID: 1, Name: "Anna", Timezone: "UTC"}
	store.clients[2] = &model.Client{ID: 2, MasterID: 1, Name: "Olga", TelegramID: clientTelegramID}
	store.services[3] = &model.Service{ID: 3, MasterID: 1, Name: "Manicure", DurationMinutes: 60}
	a := &model.Appointment{
		ID: 10, MasterID: 1, ClientID: 2, ServiceID: 3,
		StartTime: start, EndTime: start.Add(time.Hour),
		Status: model.StatusScheduled,
	}
	store.appointments[a.ID] = a
	return a
}

func newTestService(store Store, notifier Notifier) *Service {
	logger := zerolog.New(io.Discard)
	return NewService(Config{LeadTime: 24 * time.Hour}, store, notifier, &logger)
}

func TestSweepSendsDueReminder(t *testing.T) {
	store := newFakeStore()
	notifier := newFakeNotifier()
	start := time.Now().UTC().Add(2 * time.Hour)
	seed(store, start, 777)

	svc := newTestService(store, notifier)
	svc.sweep()

	assert.Equal(t, 1, notifier.sentTo(777))
	assert.True(t, store.appointments[10].ReminderSent)

	text := notifier.lastText(777)
	assert.Contains(t, text, start.Format("15:04"))
	assert.Contains(t, text, "Manicure")

	// A second sweep stays quiet.
	svc.sweep()
	assert.Equal(t, 1, notifier.sentTo(777))
}

func TestSweepIgnoresDistantAppointments(t *testing.T) {
	store := newFakeStore()
	notifier := newFakeNotifier()
	seed(store, time.Now().UTC().Add(72*time.Hour), 777)

	svc := newTestService(store, notifier)
	svc.sweep()

	assert.Equal(t, 0, notifier.sentTo(777))
	assert.False(t, store.appointments[10].ReminderSent)
}

func TestSweepSkipsClientsWithoutTelegram(t *testing.T) {
	store := newFakeStore()
	notifier := newFakeNotifier()
	seed(store, time.Now().UTC().Add(2*time.Hour), 0)

	svc := newTestService(store, notifier)
	svc.sweep()

	assert.Empty(t, notifier.sent)
	// Still marked so the sweep stops retrying a dead end.
	assert.True(t, store.appointments[10].ReminderSent)
}

func TestSweepSkipsCancelled(t *testing.T) {
	store := newFakeStore()
	notifier := newFakeNotifier()
	a := seed(store, time.Now().UTC().Add(2*time.Hour), 777)
	a.Status = model.StatusCancelled

	svc := newTestService(store, notifier)
	svc.sweep()

	assert.Equal(t, 0, notifier.sentTo(777))
}

func TestDayWord(t *testing.T) {
	now := time.Date(2030, 6, 3, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		start time.Time
		want  string
	}{
		{"later the same day", time.Date(2030, 6, 3, 18, 30, 0, 0, time.UTC), "сегодня"},
		{"next day", time.Date(2030, 6, 4, 9, 0, 0, 0, time.UTC), "завтра"},
		{"next day but under 24h away", time.Date(2030, 6, 4, 10, 0, 0, 0, time.UTC), "завтра"},
		{"further out", time.Date(2030, 6, 6, 9, 0, 0, 0, time.UTC), "06.06"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dayWord(tt.start, now))
		})
	}
}

func TestStartStop(t *testing.T) {
	store := newFakeStore()
	notifier := newFakeNotifier()
	seed(store, time.Now().UTC().Add(2*time.Hour), 777)

	svc := newTestService(store, notifier)
	svc.Start()
	svc.Start() // idempotent

	require.Eventually(t, func() bool {
		return notifier.sentTo(777) == 1
	}, 2*time.Second, 10*time.Millisecond)

	svc.Stop()
	svc.Stop() // idempotent
}
