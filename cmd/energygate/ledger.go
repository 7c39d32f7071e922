package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/energygate/adapters/ledger"
	"github.com/layer-3/energygate/internal/config"
	"github.com/layer-3/energygate/ports"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// openLedger opens the configured usage store. The returned closer releases it.
func openLedger(cfg config.LedgerConfig) (ports.Ledger, io.Closer, error) {
	switch strings.ToLower(cfg.Driver) {
	case config.LedgerMemory:
		return ledger.NewMemoryLedger(), closerFunc(func() error { return nil }), nil

	case config.LedgerSQLite:
		l, err := ledger.NewSQLiteLedger(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return l, l, nil

	case config.LedgerBadger:
		l, err := ledger.OpenBadgerLedger(cfg.BadgerPath)
		if err != nil {
			return nil, nil, err
		}
		return l, l, nil

	case config.LedgerRedis:
		client, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		l := ledger.NewRedisLedger(client)
		return l, l, nil

	default:
		return nil, nil, fmt.Errorf("unknown ledger driver %q", cfg.Driver)
	}
}

func newRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return redis.NewClient(opts), nil
}
