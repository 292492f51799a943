package quota

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps usage windows as TTL'd fixed-window counters.
//
// Key shape: quota:usage:<integration_id>:<endpoint>:<window_type>:<start_ms>
// The window start is part of the key, so an expired window can never be
// incremented; a new boundary produces a new key and the old one lapses via
// TTL. Keys expire at resets_at, which makes DeleteExpiredBefore a no-op.
//
// Integration IDs and endpoints must not contain ':'.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

var windowIncrScript = redis.NewScript(`
-- KEYS[1] = usage counter key
-- ARGV[1] = ttl_ms until the window resets
--
-- Returns the usage count after this call.
local current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
else
  -- Ensure TTL exists even if the key survived without one
  if redis.call('PTTL', KEYS[1]) < 0 then
    redis.call('PEXPIRE', KEYS[1], ARGV[1])
  end
end
return current
`)

func usageKey(integrationID, endpoint string, wt WindowType, start time.Time) string {
	return fmt.Sprintf("quota:usage:%s:%s:%s:%d", integrationID, endpoint, wt, start.UnixMilli())
}

func alertKey(integrationID, endpoint string, wt WindowType, start time.Time) string {
	return fmt.Sprintf("quota:alert:%s:%s:%s:%d", integrationID, endpoint, wt, start.UnixMilli())
}

func (s *RedisStore) IncrementWindow(ctx context.Context, fresh Window, now time.Time) (Window, error) {
	ttl := fresh.ResetsAt.Sub(now)
	if ttl <= 0 {
		ttl = time.Millisecond
	}

	key := usageKey(fresh.IntegrationID, fresh.Endpoint, fresh.WindowType, fresh.WindowStart)
	usage, err := windowIncrScript.Run(ctx, s.rdb, []string{key}, ttl.Milliseconds()).Int()
	if err != nil {
		return Window{}, err
	}

	out := fresh
	out.CurrentUsage = usage
	out.RemainingQuota = fresh.LimitValue - usage
	if out.RemainingQuota < 0 {
		out.RemainingQuota = 0
	}
	return out, nil
}

func (s *RedisStore) ActiveWindows(ctx context.Context, integrationID, endpoint string, now time.Time) ([]Window, error) {
	tiers := Tiers(CategoryForEndpoint(endpoint))

	out := make([]Window, 0, len(tiers))
	for _, tier := range tiers {
		w := newWindow(integrationID, endpoint, tier, now)
		usage, err := s.rdb.Get(ctx, usageKey(integrationID, endpoint, tier.WindowType, w.WindowStart)).Int()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, err
		}
		w.CurrentUsage = usage
		w.RemainingQuota = tier.Limit - usage
		if w.RemainingQuota < 0 {
			w.RemainingQuota = 0
		}
		if alertAt, ok, err := s.lastAlert(ctx, integrationID, endpoint, tier.WindowType, w.WindowStart); err != nil {
			return nil, err
		} else if ok {
			w.LastAlertAt = &alertAt
		}
		out = append(out, w)
	}
	return out, nil
}

func (s *RedisStore) ListActive(ctx context.Context, integrationID string, now time.Time) ([]Window, error) {
	pattern := fmt.Sprintf("quota:usage:%s:*", integrationID)

	out := make([]Window, 0)
	iter := s.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		endpoint, wt, start, ok := parseUsageKey(key)
		if !ok {
			continue
		}
		w := newWindow(integrationID, endpoint, Tier{WindowType: wt, Limit: limitTable[CategoryForEndpoint(endpoint)][wt]}, start)
		if !w.Active(now) {
			continue
		}
		usage, err := s.rdb.Get(ctx, key).Int()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, err
		}
		w.CurrentUsage = usage
		w.RemainingQuota = w.LimitValue - usage
		if w.RemainingQuota < 0 {
			w.RemainingQuota = 0
		}
		out = append(out, w)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RedisStore) MarkAlerted(ctx context.Context, w Window, now time.Time) error {
	ttl := w.ResetsAt.Sub(now)
	if ttl <= 0 {
		return nil
	}
	key := alertKey(w.IntegrationID, w.Endpoint, w.WindowType, w.WindowStart)
	return s.rdb.Set(ctx, key, now.UnixMilli(), ttl).Err()
}

// DeleteExpiredBefore is a no-op: counters carry a TTL and expire on their
// own at the window boundary.
func (s *RedisStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (s *RedisStore) lastAlert(ctx context.Context, integrationID, endpoint string, wt WindowType, start time.Time) (time.Time, bool, error) {
	ms, err := s.rdb.Get(ctx, alertKey(integrationID, endpoint, wt, start)).Int64()
	if err != nil {
		if err == redis.Nil {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

func parseUsageKey(key string) (endpoint string, wt WindowType, start time.Time, ok bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 6 || parts[0] != "quota" || parts[1] != "usage" {
		return "", "", time.Time{}, false
	}
	ms, err := strconv.ParseInt(parts[5], 10, 64)
	if err != nil {
		return "", "", time.Time{}, false
	}
	return parts[3], WindowType(parts[4]), time.UnixMilli(ms).UTC(), true
}
