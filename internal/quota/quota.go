// Package quota enforces the per-identity daily rewrite limit.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"draft-polisher/internal/logging"
)

const (
	// DefaultDailyLimit is the number of accepted rewrites per identity per UTC day.
	DefaultDailyLimit = 50
	// DateLayout is how a counter's calendar date is keyed.
	DateLayout = "2006-01-02"

	ReasonDailyLimit = "daily_limit_reached"
)

// CounterStore holds one counter per (identity, date).
type CounterStore interface {
	// IncrementIfBelow atomically increments the counter when it is below
	// limit. It returns the counter after the call and whether it was
	// incremented.
	IncrementIfBelow(ctx context.Context, identity, date string, limit int) (int, bool, error)
}

// Decision is the outcome of one reservation.
type Decision struct {
	Allowed bool
	Count   int
	Limit   int
	Reason  string
}

// Enforcer reserves quota for accepted requests.
type Enforcer struct {
	store CounterStore
	limit int
	log   logging.Logger
}

// NewEnforcer builds an Enforcer. A non-positive limit uses DefaultDailyLimit.
func NewEnforcer(store CounterStore, limit int, log logging.Logger) (*Enforcer, error) {
	if store == nil {
		return nil, errors.New("quota: counter store must not be nil")
	}
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Enforcer{store: store, limit: limit, log: log}, nil
}

// Limit returns the configured daily limit.
func (e *Enforcer) Limit() int {
	return e.limit
}

// CheckAndReserve consumes one unit of today's quota for identity. Counters
// only ever grow, and a denied call leaves the counter unchanged.
func (e *Enforcer) CheckAndReserve(ctx context.Context, identity string, now time.Time) (Decision, error) {
	if identity == "" {
		return Decision{}, errors.New("quota: identity must not be empty")
	}
	date := DateKey(now)
	count, ok, err := e.store.IncrementIfBelow(ctx, identity, date, e.limit)
	if err != nil {
		return Decision{}, fmt.Errorf("quota: reserve: %w", err)
	}
	d := Decision{Allowed: ok, Count: count, Limit: e.limit}
	if !ok {
		d.Reason = ReasonDailyLimit
		e.log.Info("daily quota exhausted", "date", date, "count", count)
	}
	return d, nil
}

// DateKey returns the UTC calendar date of t.
func DateKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
