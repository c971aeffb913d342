// Package repository persists sessions and daily request counters.
//
// Every backend stores sessions append-only and increments counters with a
// single atomic conditional write.
package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"draft-polisher/internal/domain"
)

// Store is the full persistence surface used by the server.
type Store interface {
	FindLatestSession(ctx context.Context, keys []domain.IdentifierKey, since time.Time) (domain.SessionIdentity, bool, error)
	CreateSession(ctx context.Context, s domain.SessionIdentity) error
	ListSessions(ctx context.Context, identifier string) ([]domain.SessionIdentity, error)
	IncrementIfBelow(ctx context.Context, identity, date string, limit int) (int, bool, error)
	Close() error
}

// CounterStore is a store that only keeps request counters.
type CounterStore interface {
	IncrementIfBelow(ctx context.Context, identity, date string, limit int) (int, bool, error)
	Close() error
}

var errEmptyKeys = errors.New("repository: at least one identifier key is required")

// counterOverride routes counter calls to a separate backend.
type counterOverride struct {
	Store
	counters CounterStore
}

// WithCounters returns a Store that keeps sessions in base and counters in c.
func WithCounters(base Store, c CounterStore) Store {
	return &counterOverride{Store: base, counters: c}
}

func (o *counterOverride) IncrementIfBelow(ctx context.Context, identity, date string, limit int) (int, bool, error) {
	return o.counters.IncrementIfBelow(ctx, identity, date, limit)
}

func (o *counterOverride) Close() error {
	return errors.Join(o.counters.Close(), o.Store.Close())
}

// sortNewestFirst orders rows by creation time, most recent first.
func sortNewestFirst(rows []domain.SessionIdentity) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
}

// matchesAny reports whether identifier is any of the row's identifiers.
func matchesAny(row domain.SessionIdentity, identifier string) bool {
	return identifier != "" &&
		(row.DeviceID == identifier || row.PersistentID == identifier || row.SessionToken == identifier)
}
