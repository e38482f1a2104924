package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"zapisly/internal/model"
	"zapisly/internal/schedule"
)

// ScheduleCache keeps decoded working hours in redis so slot lookups
// skip re-parsing the schedule JSON on every request. Writers must call
// Invalidate synchronously after saving a schedule so no reader ever
// sees stale hours.
type ScheduleCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewScheduleCache(client *redis.Client, ttl time.Duration, logger *zerolog.Logger) *ScheduleCache {
	return &ScheduleCache{redis: client, ttl: ttl, logger: logger}
}

func scheduleKey(masterID int64) string {
	return fmt.Sprintf("schedule:%d", masterID)
}

// WorkingHours returns the master's schedule, from cache when present.
// Cache errors degrade to decoding the persisted JSON.
func (c *ScheduleCache) WorkingHours(ctx context.Context, master *model.Master) (*schedule.WorkingHours, error) {
	key := scheduleKey(master.ID)
	if val, err := c.redis.Get(ctx, key).Result(); err == nil {
		if wh, derr := schedule.DecodeWorkingHours(val); derr == nil {
			return wh, nil
		}
		// Corrupt cache entry; drop it and fall through.
		_ = c.redis.Del(ctx, key).Err()
	} else if err != redis.Nil {
		c.logger.Warn().Err(err).Int64("master_id", master.ID).Msg("schedule cache read failed")
	}

	wh, err := schedule.DecodeWorkingHours(master.WorkSchedule)
	if err != nil {
		return nil, err
	}
	if err := c.redis.Set(ctx, key, master.WorkSchedule, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Int64("master_id", master.ID).Msg("schedule cache write failed")
	}
	return wh, nil
}

// Invalidate removes a master's cached schedule. Call it in the same
// request that persisted the change, before replying to the caller.
func (c *ScheduleCache) Invalidate(ctx context.Context, masterID int64) error {
	if err := c.redis.Del(ctx, scheduleKey(masterID)).Err(); err != nil {
		return fmt.Errorf("invalidate schedule cache for master %d: %w", masterID, err)
	}
	return nil
}
