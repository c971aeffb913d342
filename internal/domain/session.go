package domain

import "time"

// IdentifierKind names which weak identifier an IdentifierKey carries.
type IdentifierKind string

const (
	KindDevice     IdentifierKind = "device"
	KindPersistent IdentifierKind = "persistent"
	KindSession    IdentifierKind = "session"
)

// IdentifierKey is one candidate key used to look up a session.
type IdentifierKey struct {
	Kind  IdentifierKind
	Value string
}

// Identifiers is the bundle of weak identifiers a caller presents.
// Any of them may be empty.
type Identifiers struct {
	DeviceID     string
	PersistentID string
	SessionToken string
}

// Keys returns the non-empty identifiers as a candidate key set.
func (ids Identifiers) Keys() []IdentifierKey {
	keys := make([]IdentifierKey, 0, 3)
	if ids.DeviceID != "" {
		keys = append(keys, IdentifierKey{Kind: KindDevice, Value: ids.DeviceID})
	}
	if ids.PersistentID != "" {
		keys = append(keys, IdentifierKey{Kind: KindPersistent, Value: ids.PersistentID})
	}
	if ids.SessionToken != "" {
		keys = append(keys, IdentifierKey{Kind: KindSession, Value: ids.SessionToken})
	}
	return keys
}

// Matches reports whether the session row carries the given key.
func (s SessionIdentity) Matches(k IdentifierKey) bool {
	if k.Value == "" {
		return false
	}
	switch k.Kind {
	case KindDevice:
		return s.DeviceID == k.Value
	case KindPersistent:
		return s.PersistentID == k.Value
	case KindSession:
		return s.SessionToken == k.Value
	}
	return false
}

// SessionIdentity is one persisted session row. Rows are append-only: a
// renewal or access writes a new row rather than updating an old one.
type SessionIdentity struct {
	ID             string    `json:"id"`
	DeviceID       string    `json:"deviceId"`
	PersistentID   string    `json:"persistentUuid"`
	SessionToken   string    `json:"sessionId,omitempty"`
	IPAddress      string    `json:"ipAddress"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
	CreatedAt      time.Time `json:"createdAt"`
}

// CanonicalIdentity is the server's resolved notion of who is calling.
type CanonicalIdentity struct {
	PersistentID string
	SessionToken string
	// Created is set when a new persistent id was minted.
	Created bool
	// Renewed is set when an active session matched and its idle window
	// was extended.
	Renewed bool
}
