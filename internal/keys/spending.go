// Spend tracking for rate-limiting value transfers. Grounded on
// original_source/src/keys/spending.rs: cumulative daily spend in
// yoctoNEAR, 30-day retention, a per-day audit trail of individual
// transfers.
package keys

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ironclaw/core/internal/kerr"
)

// parseYocto parses a decimal yoctoNEAR amount, rejecting negative
// values; yoctoNEAR amounts routinely exceed int64 range.
func parseYocto(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, kerr.New(kerr.Validation, "invalid yoctoNEAR amount %q", s)
	}
	if n.Sign() < 0 {
		return nil, kerr.New(kerr.Validation, "yoctoNEAR amount must not be negative: %q", s)
	}
	return n, nil
}

// SpendEntry is a single recorded transfer in a day's audit trail.
type SpendEntry struct {
	Timestamp   time.Time
	TxHash      string
	ValueYocto  string // decimal string; yoctoNEAR amounts exceed int64 range
	Description string
}

// SpendRecord is one UTC day's cumulative spend and audit trail.
type SpendRecord struct {
	Date            string // YYYY-MM-DD, UTC
	TotalSpentYocto string
	Transactions    []SpendEntry
}

// SpendTracker enforces a daily spend cap by tracking cumulative
// transfers per UTC day, mirroring the Rust original's JSON-file-backed
// tracker but persisted through the same storage abstraction as the
// rest of this module rather than a standalone file.
type SpendTracker struct {
	mu      sync.Mutex
	records map[string]*SpendRecord // date -> record
}

// NewSpendTracker constructs an empty tracker.
func NewSpendTracker() *SpendTracker {
	return &SpendTracker{records: make(map[string]*SpendRecord)}
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}

// GetDailySpend returns today's cumulative spend in yoctoNEAR, as a
// base-10 big integer decimal string, or "0" if nothing has been spent
// yet today.
func (t *SpendTracker) GetDailySpend(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[today()]
	if !ok {
		return "0", nil
	}
	return rec.TotalSpentYocto, nil
}

// RecordSpend appends a transfer to today's audit trail and rolls it
// into the day's cumulative total, then prunes records older than 30
// days.
func (t *SpendTracker) RecordSpend(ctx context.Context, valueYocto string, description, txHash string) error {
	amount, err := parseYocto(valueYocto)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	day := today()
	rec, ok := t.records[day]
	if !ok {
		rec = &SpendRecord{Date: day, TotalSpentYocto: "0"}
		t.records[day] = rec
	}

	running, _ := parseYocto(rec.TotalSpentYocto)
	running.Add(running, amount)
	rec.TotalSpentYocto = running.String()
	rec.Transactions = append(rec.Transactions, SpendEntry{
		Timestamp:   time.Now().UTC(),
		TxHash:      txHash,
		ValueYocto:  valueYocto,
		Description: description,
	})

	t.pruneLocked(30)
	return nil
}

// GetHistory returns spend records from the last n days, oldest first.
func (t *SpendTracker) GetHistory(ctx context.Context, days int) ([]SpendRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	out := make([]SpendRecord, 0, len(t.records))
	for date, rec := range t.records {
		if date >= cutoff {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// pruneLocked discards records older than the retention window. Caller
// must hold t.mu.
func (t *SpendTracker) pruneLocked(retentionDays int) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format("2006-01-02")
	for date := range t.records {
		if date < cutoff {
			delete(t.records, date)
		}
	}
}

// CheckDailyLimit returns a BudgetExhausted error if adding
// proposedYocto to today's spend would exceed limitYocto.
func (t *SpendTracker) CheckDailyLimit(ctx context.Context, proposedYocto, limitYocto string) error {
	proposed, err := parseYocto(proposedYocto)
	if err != nil {
		return err
	}
	limit, err := parseYocto(limitYocto)
	if err != nil {
		return err
	}

	spent, err := t.GetDailySpend(ctx)
	if err != nil {
		return err
	}
	already, err := parseYocto(spent)
	if err != nil {
		return err
	}

	total := new(big.Int).Add(already, proposed)
	if total.Cmp(limit) > 0 {
		return kerr.New(kerr.BudgetExhausted, "daily spend limit would be exceeded: %s + %s > %s", already.String(), proposed.String(), limit.String())
	}
	return nil
}
