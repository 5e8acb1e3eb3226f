// Package budget tracks cumulative spend against a ceiling using fixed-point
// decimal arithmetic. Floating point is never used for money: many small
// LLM-call costs would otherwise accumulate rounding drift.
package budget

import (
	"sync"

	"github.com/shopspring/decimal"

	"persona/internal/errors"
	"persona/internal/logging"
)

// Tracker is the one piece of mutable state shared between concurrent
// refinement tasks. All mutations are serialized behind a mutex, and the
// afford-check and spend-reservation are a single atomic operation (Reserve)
// to close the check-then-act race between concurrent callers.
type Tracker struct {
	mu       sync.Mutex
	ceiling  decimal.Decimal
	spent    decimal.Decimal
	reserved decimal.Decimal
	strict   bool
	overshot bool
	logger   logging.Logger
}

// NewTracker constructs a tracker with the given ceiling. In strict mode,
// Record refuses spend that would exceed the ceiling; otherwise overshoot is
// allowed but flagged for the run's final status.
func NewTracker(ceiling decimal.Decimal, strict bool, logger logging.Logger) *Tracker {
	return &Tracker{
		ceiling: ceiling,
		strict:  strict,
		logger:  logging.OrNop(logger),
	}
}

// CanAfford reports whether estimated cost fits in the uncommitted,
// unreserved remainder. Pure query, no side effect.
func (t *Tracker) CanAfford(estimated decimal.Decimal) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return estimated.LessThanOrEqual(t.remainingLocked())
}

// Reservation holds an amount carved out of the budget for one backend call.
// Exactly one of Commit or Release must be called.
type Reservation struct {
	tracker   *Tracker
	estimated decimal.Decimal
	done      bool
}

// Reserve atomically checks affordability and earmarks the estimated amount.
// Two concurrent reservations can never jointly exceed the ceiling: the
// second caller observes the first caller's reservation.
func (t *Tracker) Reserve(estimated decimal.Decimal) (*Reservation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if estimated.GreaterThan(t.remainingLocked()) {
		t.logger.Debug("reservation of %s declined, %s remaining", estimated, t.remainingLocked())
		return nil, false
	}
	t.reserved = t.reserved.Add(estimated)
	return &Reservation{tracker: t, estimated: estimated}, true
}

// Commit replaces the reservation with the actual spend.
func (r *Reservation) Commit(actual decimal.Decimal) error {
	r.tracker.mu.Lock()
	defer r.tracker.mu.Unlock()

	if r.done {
		return nil
	}
	r.done = true
	r.tracker.reserved = r.tracker.reserved.Sub(r.estimated)
	return r.tracker.recordLocked(actual)
}

// Release returns the reserved amount without spending it.
func (r *Reservation) Release() {
	r.tracker.mu.Lock()
	defer r.tracker.mu.Unlock()

	if r.done {
		return
	}
	r.done = true
	r.tracker.reserved = r.tracker.reserved.Sub(r.estimated)
}

// Record adds actual spend. In strict mode it fails with BudgetExceededError
// when the total would pass the ceiling; in lenient mode it allows the
// overshoot but flags it.
func (t *Tracker) Record(actual decimal.Decimal) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recordLocked(actual)
}

func (t *Tracker) recordLocked(actual decimal.Decimal) error {
	next := t.spent.Add(actual)
	if next.GreaterThan(t.ceiling) {
		if t.strict {
			return &errors.BudgetExceededError{Attempted: actual, Spent: t.spent, Ceiling: t.ceiling}
		}
		t.overshot = true
		t.logger.Warn("budget overshoot: spent %s of ceiling %s", next, t.ceiling)
	}
	t.spent = next
	return nil
}

// Remaining returns ceiling minus committed and reserved spend, floored at zero.
func (t *Tracker) Remaining() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remainingLocked()
}

func (t *Tracker) remainingLocked() decimal.Decimal {
	remaining := t.ceiling.Sub(t.spent).Sub(t.reserved)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// Spent returns cumulative committed spend.
func (t *Tracker) Spent() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spent
}

// Ceiling returns the authorized maximum for this run.
func (t *Tracker) Ceiling() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ceiling
}

// Overshot reports whether lenient-mode spend ever passed the ceiling.
func (t *Tracker) Overshot() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.overshot
}
