package reputation

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Reputation tracks per-user trade outcome counters. Records are created
// lazily, mutated only as a side effect of escrow settlement (or by the
// admin-restricted update entry point) and never deleted.
type Reputation struct {
	User             [20]byte
	SuccessfulTrades uint64
	FailedTrades     uint64
}

// Clone returns a copy of the record so callers can mutate the result without
// affecting the stored instance.
func (r *Reputation) Clone() *Reputation {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// TotalTrades returns the saturating sum of both counters.
func (r *Reputation) TotalTrades() uint64 {
	if r == nil {
		return 0
	}
	if r.SuccessfulTrades > math.MaxUint64-r.FailedTrades {
		return math.MaxUint64
	}
	return r.SuccessfulTrades + r.FailedTrades
}

// SuccessRate returns the percentage of successful trades, 0 when the user
// has no recorded trades.
func (r *Reputation) SuccessRate() float64 {
	total := r.TotalTrades()
	if total == 0 {
		return 0
	}
	return float64(r.SuccessfulTrades) / float64(total) * 100
}

// IncrementSuccessful bumps the success counter, clamping at the maximum
// representable value instead of wrapping.
func (r *Reputation) IncrementSuccessful() {
	if r == nil {
		return
	}
	if r.SuccessfulTrades < math.MaxUint64 {
		r.SuccessfulTrades++
	}
}

// IncrementFailed bumps the failure counter, clamping at the maximum
// representable value instead of wrapping.
func (r *Reputation) IncrementFailed() {
	if r == nil {
		return
	}
	if r.FailedTrades < math.MaxUint64 {
		r.FailedTrades++
	}
}

// Outcome labels the direction of a reputation update.
type Outcome uint8

const (
	OutcomeSuccessful Outcome = iota
	OutcomeFailed
)

// Valid reports whether the outcome value is within the supported range.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccessful, OutcomeFailed:
		return true
	default:
		return false
	}
}

// String returns the canonical wire label for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccessful:
		return "successful"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// ParseOutcome maps a wire label onto an Outcome.
func ParseOutcome(raw string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "successful", "success":
		return OutcomeSuccessful, nil
	case "failed", "failure":
		return OutcomeFailed, nil
	default:
		return 0, fmt.Errorf("reputation: invalid outcome %q", raw)
	}
}

var (
	// ErrNilState indicates the ledger was used before a store was attached.
	ErrNilState = errors.New("reputation: state not configured")
	// ErrInvalidUser rejects the zero address as a reputation subject.
	ErrInvalidUser = errors.New("reputation: invalid user address")
	// ErrNotFound marks a missing reputation record.
	ErrNotFound = errors.New("reputation: record not found")
)
