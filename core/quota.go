package core

import (
	"strings"
	"time"
)

// MaxEnergy is the default daily allowance per wallet.
const MaxEnergy = 100

// DayLayout is the calendar-day key used by every ledger.
const DayLayout = "2006-01-02"

// UsageRecord is one quota-consuming activity. Records are append-only.
type UsageRecord struct {
	Wallet    string
	Timestamp time.Time
}

// Day formats t as a server-local calendar date.
func Day(t time.Time) string {
	return t.Local().Format(DayLayout)
}

// NormalizeWallet is the canonical form used for ledger comparisons.
func NormalizeWallet(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}

// RemainingEnergy is maxEnergy-used, floored at zero.
func RemainingEnergy(maxEnergy, used int) int {
	if used < 0 {
		used = 0
	}
	if used >= maxEnergy {
		return 0
	}
	return maxEnergy - used
}
