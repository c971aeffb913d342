// Package identity correlates the weak identifiers a caller presents into one
// canonical identity.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"draft-polisher/internal/domain"
	"draft-polisher/internal/logging"
)

// DefaultIdleTimeout is how long a session stays matchable after its last access.
const DefaultIdleTimeout = 24 * time.Hour

// ErrNoIdentifiers is returned when a caller presents none of the identifiers.
var ErrNoIdentifiers = errors.New("identity: no identifiers presented")

// SessionStore is the persistence the resolver needs. Rows are append-only.
type SessionStore interface {
	// FindLatestSession returns the most recently accessed row that matches
	// any of keys and was accessed after since.
	FindLatestSession(ctx context.Context, keys []domain.IdentifierKey, since time.Time) (domain.SessionIdentity, bool, error)
	CreateSession(ctx context.Context, s domain.SessionIdentity) error
}

// Resolver maps identifiers to a CanonicalIdentity.
type Resolver struct {
	store SessionStore
	idle  time.Duration
	log   logging.Logger
	newID func() string
}

// NewResolver builds a Resolver. A non-positive idle uses DefaultIdleTimeout.
func NewResolver(store SessionStore, idle time.Duration, log logging.Logger) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("identity: session store must not be nil")
	}
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Resolver{store: store, idle: idle, log: log, newID: uuid.NewString}, nil
}

// Resolve finds the caller's active session, matching on any one identifier,
// and returns its persistent id and session token. Every successful call
// appends a row stamped with now, which slides the idle window. When no
// active session matches, a new persistent id is minted, plus a session token
// if the caller sent none.
//
// Any error means the caller has no identity and must be denied.
func (r *Resolver) Resolve(ctx context.Context, ids domain.Identifiers, ip string, now time.Time) (domain.CanonicalIdentity, error) {
	keys := ids.Keys()
	if len(keys) == 0 {
		return domain.CanonicalIdentity{}, ErrNoIdentifiers
	}
	now = now.UTC()

	found, ok, err := r.store.FindLatestSession(ctx, keys, now.Add(-r.idle))
	if err != nil {
		return domain.CanonicalIdentity{}, fmt.Errorf("identity: find session: %w", err)
	}

	row := domain.SessionIdentity{
		ID:             r.newID(),
		DeviceID:       ids.DeviceID,
		IPAddress:      ip,
		LastAccessedAt: now,
		CreatedAt:      now,
	}
	out := domain.CanonicalIdentity{}
	if ok {
		row.PersistentID = found.PersistentID
		row.SessionToken = found.SessionToken
		if row.DeviceID == "" {
			row.DeviceID = found.DeviceID
		}
		out.Renewed = true
	} else {
		row.PersistentID = r.newID()
		row.SessionToken = ids.SessionToken
		if row.SessionToken == "" {
			row.SessionToken = r.newID()
		}
		out.Created = true
	}

	if err := r.store.CreateSession(ctx, row); err != nil {
		return domain.CanonicalIdentity{}, fmt.Errorf("identity: create session: %w", err)
	}
	out.PersistentID = row.PersistentID
	out.SessionToken = row.SessionToken

	r.log.Debug("identity resolved", "created", out.Created, "keys", len(keys))
	return out, nil
}
