package workflow

import "time"

// Budget is the wall-clock allowance of one monitor run. It is not persisted:
// every run starts with a fresh budget.
type Budget struct {
	started time.Time
	limit   time.Duration
	now     func() time.Time
}

// NewBudget starts a budget of limit at the current time of now.
func NewBudget(limit time.Duration, now func() time.Time) Budget {
	if now == nil {
		now = time.Now
	}
	return Budget{started: now(), limit: limit, now: now}
}

// Elapsed is the wall time since the budget started.
func (b Budget) Elapsed() time.Duration {
	return b.now().Sub(b.started)
}

// Remaining never goes below zero.
func (b Budget) Remaining() time.Duration {
	remaining := b.limit - b.Elapsed()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Exhausted reports whether the whole allowance has been used.
func (b Budget) Exhausted() bool {
	return b.Elapsed() >= b.limit
}
