package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/energygate/core"
	"github.com/layer-3/energygate/ports"
)

// MemoryLedger is an in-memory implementation of the Ledger interface
// This is primarily intended for testing and single-node development
type MemoryLedger struct {
	records []core.UsageRecord
	mu      sync.RWMutex
}

// NewMemoryLedger creates a new in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

var _ ports.Ledger = (*MemoryLedger)(nil)

// CountUsage counts records for wallet on day
func (l *MemoryLedger) CountUsage(ctx context.Context, wallet string, day string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	wallet = core.NormalizeWallet(wallet)
	count := 0
	for _, r := range l.records {
		if core.NormalizeWallet(r.Wallet) == wallet && core.Day(r.Timestamp) == day {
			count++
		}
	}
	return count, nil
}

// RecordUsage appends a record
func (l *MemoryLedger) RecordUsage(ctx context.Context, wallet string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, core.UsageRecord{Wallet: wallet, Timestamp: at})
	return nil
}

// Clear removes all records
// This is useful for testing to reset the ledger between tests
func (l *MemoryLedger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = nil
}
