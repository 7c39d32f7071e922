package ledger

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/layer-3/energygate/core"
	"github.com/layer-3/energygate/ports"
)

const badgerUsagePrefix = "usage/"

// BadgerLedger stores usage records in an embedded Badger database.
//
// Key layout: usage/<wallet>/<day>/<unix-nano>/<random>, value: RFC3339 timestamp.
// Counting a day is a key-only prefix scan.
type BadgerLedger struct {
	db *badger.DB
}

var _ ports.Ledger = (*BadgerLedger)(nil)

// NewBadgerLedger wraps an open Badger database.
func NewBadgerLedger(db *badger.DB) *BadgerLedger {
	return &BadgerLedger{db: db}
}

// OpenBadgerLedger opens (or creates) a Badger database at path.
func OpenBadgerLedger(path string) (*BadgerLedger, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return NewBadgerLedger(db), nil
}

// Close closes the underlying database.
func (l *BadgerLedger) Close() error {
	return l.db.Close()
}

func dayPrefix(wallet, day string) []byte {
	return []byte(badgerUsagePrefix + core.NormalizeWallet(wallet) + "/" + day + "/")
}

// CountUsage counts keys under the wallet/day prefix.
func (l *BadgerLedger) CountUsage(ctx context.Context, wallet string, day string) (int, error) {
	prefix := dayPrefix(wallet, day)
	count := 0

	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", core.ErrQuotaQuery, err)
	}
	return count, nil
}

// RecordUsage appends a record.
func (l *BadgerLedger) RecordUsage(ctx context.Context, wallet string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var suffix [8]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return fmt.Errorf("generate key suffix: %w", err)
	}

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(at.UnixNano()))

	key := append(dayPrefix(wallet, core.Day(at)), []byte(hex.EncodeToString(ts[:])+"/"+hex.EncodeToString(suffix[:]))...)
	value := []byte(at.UTC().Format(time.RFC3339Nano))

	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}
