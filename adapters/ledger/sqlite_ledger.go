package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/layer-3/energygate/core"
	"github.com/layer-3/energygate/ports"
)

// SQLiteLedger provides SQLite-backed persistence for usage records.
type SQLiteLedger struct {
	db *sql.DB
}

var _ ports.Ledger = (*SQLiteLedger)(nil)

// NewSQLiteLedger opens the SQLite database at dbPath and creates tables if they don't exist.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &SQLiteLedger{db: db}, nil
}

// Close closes the database connection.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// createTables creates usage_energy. It stores the calendar day next to the
// timestamp so counts are an indexed equality match; it is not the layout of a
// sequelize usageenergies table and such files are not read.
func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage_energy (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		wallet TEXT NOT NULL,
		day TEXT NOT NULL,
		datetime DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_usage_energy_wallet_day
		ON usage_energy (lower(wallet), day);
	`
	_, err := db.Exec(schema)
	return err
}

// CountUsage counts records for wallet on day.
func (l *SQLiteLedger) CountUsage(ctx context.Context, wallet string, day string) (int, error) {
	var count int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM usage_energy WHERE lower(wallet) = ? AND day = ?`,
		core.NormalizeWallet(wallet), day,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", core.ErrQuotaQuery, err)
	}
	return count, nil
}

// RecordUsage appends a record. The wallet is stored as given.
func (l *SQLiteLedger) RecordUsage(ctx context.Context, wallet string, at time.Time) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO usage_energy (wallet, day, datetime) VALUES (?, ?, ?)`,
		wallet, core.Day(at), at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert usage: %w", err)
	}
	return nil
}
