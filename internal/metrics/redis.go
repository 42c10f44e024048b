package metrics

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"voice-scheduler/internal/calls"
	"voice-scheduler/pkg/logger"
)

const defaultKeyPrefix = "voice:metrics:"

// observeScript records one duration atomically so count, sum and buckets never disagree.
var observeScript = redis.NewScript(`
-- KEYS[1] = histogram hash
-- ARGV[1] = bucket field
-- ARGV[2] = seconds
redis.call('HINCRBY', KEYS[1], ARGV[1], 1)
redis.call('HINCRBY', KEYS[1], 'count', 1)
redis.call('HINCRBY', KEYS[1], 'sum', ARGV[2])
return 1
`)

// RedisRecorder stores metrics in Redis hashes so they survive restarts and can be read by
// any process sharing the Redis instance.
type RedisRecorder struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisRecorder(rdb redis.UniversalClient) *RedisRecorder {
	return &RedisRecorder{rdb: rdb, prefix: defaultKeyPrefix}
}

func (r *RedisRecorder) statusKey() string   { return r.prefix + "call_status" }
func (r *RedisRecorder) failureKey() string  { return r.prefix + "provider_failures" }
func (r *RedisRecorder) durationKey() string { return r.prefix + "call_duration" }

func (r *RedisRecorder) IncCallStatus(ctx context.Context, status calls.CallStatus) {
	if err := r.rdb.HIncrBy(ctx, r.statusKey(), string(status), 1).Err(); err != nil {
		logger.From(ctx).Warn("metrics: inc call status failed", "status", status, "error", err)
	}
}

func (r *RedisRecorder) ObserveCallDuration(ctx context.Context, seconds int) {
	if seconds < 0 {
		return
	}
	if err := observeScript.Run(ctx, r.rdb, []string{r.durationKey()}, bucketField(seconds), seconds).Err(); err != nil {
		logger.From(ctx).Warn("metrics: observe call duration failed", "seconds", seconds, "error", err)
	}
}

func (r *RedisRecorder) IncProviderFailure(ctx context.Context, code string) {
	if err := r.rdb.HIncrBy(ctx, r.failureKey(), providerCode(code), 1).Err(); err != nil {
		logger.From(ctx).Warn("metrics: inc provider failure failed", "code", code, "error", err)
	}
}

func (r *RedisRecorder) Snapshot(ctx context.Context) (Snapshot, error) {
	pipe := r.rdb.Pipeline()
	statusCmd := pipe.HGetAll(ctx, r.statusKey())
	failureCmd := pipe.HGetAll(ctx, r.failureKey())
	durationCmd := pipe.HGetAll(ctx, r.durationKey())
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return Snapshot{}, fmt.Errorf("metrics: snapshot: %w", err)
	}

	status, err := parseCounts(statusCmd.Val())
	if err != nil {
		return Snapshot{}, err
	}
	failures, err := parseCounts(failureCmd.Val())
	if err != nil {
		return Snapshot{}, err
	}
	duration, err := parseCounts(durationCmd.Val())
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		CallStatus:       status,
		ProviderFailures: failures,
		Duration:         histogramFromFields(duration),
	}, nil
}

func parseCounts(raw map[string]string) (map[string]int64, error) {
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("metrics: field %q is not an integer: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}
