// Package clientstate keeps the identifiers a client presents to the gate:
// a durable record for the device and persistent ids, and an in-process
// session token that dies with the process.
package clientstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"draft-polisher/internal/domain"
)

// recordID is the fixed key of the one durable record.
const recordID = "currentSession"

const schema = `
CREATE TABLE IF NOT EXISTS client_state (
	id              TEXT PRIMARY KEY,
	device_id       TEXT NOT NULL DEFAULT '',
	persistent_uuid TEXT NOT NULL DEFAULT '',
	updated_at      DATETIME NOT NULL
);`

type record struct {
	ID             string    `db:"id"`
	DeviceID       string    `db:"device_id"`
	PersistentUUID string    `db:"persistent_uuid"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Store is the client's identifier store.
type Store struct {
	db *sqlx.DB

	mu           sync.Mutex
	sessionToken string
}

// Open opens (or creates) the durable store at path. Use ":memory:" for a
// throwaway store.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("clientstate: open %q: %w", path, err)
	}
	// one connection keeps ":memory:" databases alive across calls
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clientstate: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the identifiers for the next call. A device id is minted and
// stored on first use.
func (s *Store) Load(ctx context.Context) (domain.Identifiers, error) {
	rec, err := s.get(ctx)
	if err != nil {
		return domain.Identifiers{}, err
	}
	if rec.DeviceID == "" {
		rec.DeviceID = uuid.NewString()
		if err := s.put(ctx, rec); err != nil {
			return domain.Identifiers{}, err
		}
	}

	s.mu.Lock()
	token := s.sessionToken
	s.mu.Unlock()

	return domain.Identifiers{
		DeviceID:     rec.DeviceID,
		PersistentID: rec.PersistentUUID,
		SessionToken: token,
	}, nil
}

// Save records what the gate handed back. Empty values leave the stored ones
// in place.
func (s *Store) Save(ctx context.Context, persistentID, sessionToken string) error {
	if sessionToken != "" {
		s.mu.Lock()
		s.sessionToken = sessionToken
		s.mu.Unlock()
	}
	if persistentID == "" {
		return nil
	}
	rec, err := s.get(ctx)
	if err != nil {
		return err
	}
	rec.PersistentUUID = persistentID
	return s.put(ctx, rec)
}

func (s *Store) get(ctx context.Context) (record, error) {
	var rec record
	err := s.db.GetContext(ctx, &rec, `SELECT id, device_id, persistent_uuid, updated_at FROM client_state WHERE id = ?`, recordID)
	if errors.Is(err, sql.ErrNoRows) {
		return record{ID: recordID}, nil
	}
	if err != nil {
		return record{}, fmt.Errorf("clientstate: read record: %w", err)
	}
	return rec, nil
}

func (s *Store) put(ctx context.Context, rec record) error {
	rec.ID = recordID
	rec.UpdatedAt = time.Now().UTC()
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO client_state (id, device_id, persistent_uuid, updated_at)
		VALUES (:id, :device_id, :persistent_uuid, :updated_at)
		ON CONFLICT(id) DO UPDATE SET
			device_id = excluded.device_id,
			persistent_uuid = excluded.persistent_uuid,
			updated_at = excluded.updated_at`, rec)
	if err != nil {
		return fmt.Errorf("clientstate: write record: %w", err)
	}
	return nil
}
