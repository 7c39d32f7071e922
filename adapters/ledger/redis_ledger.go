package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/energygate/core"
	"github.com/layer-3/energygate/ports"
)

// counterTTL keeps a day's counter around long enough for every timezone to
// have left that calendar day.
const counterTTL = 72 * time.Hour

// RedisLedger is a Redis implementation of the Ledger interface.
// Each wallet has one counter per calendar day.
type RedisLedger struct {
	client *redis.Client
	prefix string
}

// NewRedisLedger creates a new Redis ledger
func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{
		client: client,
		prefix: "energygate:usage:",
	}
}

var _ ports.Ledger = (*RedisLedger)(nil)

func (l *RedisLedger) key(wallet, day string) string {
	return l.prefix + core.NormalizeWallet(wallet) + ":" + day
}

// CountUsage reads the day counter; a missing key counts as zero
func (l *RedisLedger) CountUsage(ctx context.Context, wallet string, day string) (int, error) {
	val, err := l.client.Get(ctx, l.key(wallet, day)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %w", core.ErrQuotaQuery, err)
	}

	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%w: corrupt counter %q", core.ErrQuotaQuery, val)
	}
	return count, nil
}

// RecordUsage increments the counter of the day at falls on
func (l *RedisLedger) RecordUsage(ctx context.Context, wallet string, at time.Time) error {
	key := l.key(wallet, core.Day(at))

	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, counterTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (l *RedisLedger) Close() error {
	return l.client.Close()
}
