package ports

import (
	"context"
	"time"
)

// Ledger stores append-only usage records and counts them per calendar day
type Ledger interface {
	// CountUsage returns the number of records for wallet on day (YYYY-MM-DD).
	// Wallet comparison is case-insensitive and absence yields 0.
	CountUsage(ctx context.Context, wallet string, day string) (int, error)

	// RecordUsage appends one record for wallet at the given time.
	RecordUsage(ctx context.Context, wallet string, at time.Time) error
}
