package report

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	sferrors "github.com/vnykmshr/slotflow/pkg/common/errors"
	"github.com/vnykmshr/slotflow/pkg/common/validation"
)

// luaPushCapped prepends a report, trims the list and refreshes its TTL in
// one step.
const luaPushCapped = `
redis.call('LPUSH', KEYS[1], ARGV[1])
redis.call('LTRIM', KEYS[1], 0, tonumber(ARGV[2]) - 1)
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return redis.call('LLEN', KEYS[1])
`

// RedisConfig holds configuration for a RedisSink.
type RedisConfig struct {
	// Redis client used to store reports.
	Redis redis.UniversalClient

	// Key is the list that receives reports.
	Key string

	// MaxEntries caps the list length. Defaults to 100.
	MaxEntries int

	// TTL expires the list after the last report. Zero keeps it forever.
	TTL time.Duration

	// Timeout bounds each Redis round trip. Defaults to 2s.
	Timeout time.Duration
}

// RedisSink keeps the most recent run summaries as JSON in a Redis list.
type RedisSink struct {
	config RedisConfig
	push   *redis.Script
}

// NewRedisSink creates a RedisSink.
func NewRedisSink(config RedisConfig) (*RedisSink, error) {
	if config.Redis == nil {
		return nil, sferrors.NewValidationError("report", "redis", nil, "client cannot be nil")
	}
	if err := validation.ValidateNotEmpty("report", "key", config.Key); err != nil {
		return nil, err
	}
	if config.MaxEntries == 0 {
		config.MaxEntries = 100
	}
	if err := validation.ValidatePositive("report", "max_entries", config.MaxEntries); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegativeDuration("report", "ttl", config.TTL); err != nil {
		return nil, err
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Second
	}
	return &RedisSink{config: config, push: redis.NewScript(luaPushCapped)}, nil
}

func (s *RedisSink) Name() string { return "redis" }

// Publish stores sum at the head of the list.
func (s *RedisSink) Publish(ctx context.Context, sum Summary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	return s.push.Run(ctx, s.config.Redis, []string{s.config.Key},
		string(data), s.config.MaxEntries, s.config.TTL.Milliseconds()).Err()
}

// Recent returns up to n stored summaries, newest first.
func (s *RedisSink) Recent(ctx context.Context, n int) ([]Summary, error) {
	if n <= 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	raw, err := s.config.Redis.LRange(ctx, s.config.Key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(raw))
	for _, item := range raw {
		var sum Summary
		if err := json.Unmarshal([]byte(item), &sum); err != nil {
			return nil, sferrors.NewOperationError("report", "Recent", err).WithContext(s.config.Key)
		}
		out = append(out, sum)
	}
	return out, nil
}

// Clear deletes the list.
func (s *RedisSink) Clear(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()
	return s.config.Redis.Del(ctx, s.config.Key).Err()
}
