package repository

import (
	"context"
	"sync"
	"time"

	"draft-polisher/internal/domain"
)

type counterKey struct {
	identity string
	date     string
}

// MemoryStore keeps everything in process. It is used for local runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions []domain.SessionIdentity
	counters map[counterKey]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[counterKey]int)}
}

func (m *MemoryStore) FindLatestSession(_ context.Context, keys []domain.IdentifierKey, since time.Time) (domain.SessionIdentity, bool, error) {
	if len(keys) == 0 {
		return domain.SessionIdentity{}, false, errEmptyKeys
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		best  domain.SessionIdentity
		found bool
	)
	for _, row := range m.sessions {
		if !row.LastAccessedAt.After(since) {
			continue
		}
		if found && !row.LastAccessedAt.After(best.LastAccessedAt) {
			continue
		}
		for _, k := range keys {
			if row.Matches(k) {
				best, found = row, true
				break
			}
		}
	}
	return best, found, nil
}

func (m *MemoryStore) CreateSession(_ context.Context, s domain.SessionIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, s)
	return nil
}

func (m *MemoryStore) ListSessions(_ context.Context, identifier string) ([]domain.SessionIdentity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.SessionIdentity, 0)
	for _, row := range m.sessions {
		if matchesAny(row, identifier) {
			out = append(out, row)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *MemoryStore) IncrementIfBelow(_ context.Context, identity, date string, limit int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := counterKey{identity: identity, date: date}
	n := m.counters[k]
	if n >= limit {
		return n, false, nil
	}
	m.counters[k] = n + 1
	return n + 1, true, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
