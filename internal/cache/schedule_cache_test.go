package cache

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapisly/internal/model"
	"zapisly/internal/schedule"
)

func newTestCache(t *testing.T) (*ScheduleCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	logger := zerolog.New(io.Discard)
	return NewScheduleCache(client, time.Minute, &logger), mr
}

func encodedDefault(t *testing.T) string {
	t.Helper()
	s, err := schedule.DefaultWorkingHours().Encode()
	require.NoError(t, err)
	return s
}

func TestWorkingHoursCachesOnMiss(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	master := &model.Master{ID: 1, WorkSchedule: encodedDefault(t)}

	wh, err := c.WorkingHours(ctx, master)
	require.NoError(t, err)
	monday := time.Date(2030, 6, 3, 0, 0, 0, 0, time.UTC)
	assert.NotEmpty(t, wh.IntervalsFor(monday))

	// The decoded schedule landed in redis.
	assert.True(t, mr.Exists("schedule:1"))
}

func TestWorkingHoursReadsCacheFirst(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	// Seed the cache with an empty schedule while the master row claims
	// default hours. The cached value must win.
	require.NoError(t, mr.Set("schedule:1", "{}"))
	master := &model.Master{ID: 1, WorkSchedule: encodedDefault(t)}

	wh, err := c.WorkingHours(ctx, master)
	require.NoError(t, err)
	monday := time.Date(2030, 6, 3, 0, 0, 0, 0, time.UTC)
	assert.Empty(t, wh.IntervalsFor(monday))
}

func TestInvalidate(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	master := &model.Master{ID: 1, WorkSchedule: encodedDefault(t)}

	_, err := c.WorkingHours(ctx, master)
	require.NoError(t, err)
	require.True(t, mr.Exists("schedule:1"))

	require.NoError(t, c.Invalidate(ctx, 1))
	assert.False(t, mr.Exists("schedule:1"))

	// After invalidation the fresh schedule is visible immediately.
	master.WorkSchedule = "{}"
	wh, err := c.WorkingHours(ctx, master)
	require.NoError(t, err)
	monday := time.Date(2030, 6, 3, 0, 0, 0, 0, time.UTC)
	assert.Empty(t, wh.IntervalsFor(monday))
}

func TestCorruptCacheEntryFallsBack(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("schedule:1", "not json"))
	master := &model.Master{ID: 1, WorkSchedule: encodedDefault(t)}

	wh, err := c.WorkingHours(ctx, master)
	require.NoError(t, err)
	monday := time.Date(2030, 6, 3, 0, 0, 0, 0, time.UTC)
	assert.NotEmpty(t, wh.IntervalsFor(monday))
}
