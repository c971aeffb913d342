package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"draft-polisher/internal/domain"
)

// keyColumns maps an identifier kind to the sessions column holding it.
var keyColumns = map[domain.IdentifierKind]string{
	domain.KindDevice:     "device_id",
	domain.KindPersistent: "persistent_uuid",
	domain.KindSession:    "session_id",
}

type sessionRow struct {
	ID             string `db:"id"`
	DeviceID       string `db:"device_id"`
	PersistentUUID string `db:"persistent_uuid"`
	SessionID      string `db:"session_id"`
	IPAddress      string `db:"ip_address"`
	LastAccessed   int64  `db:"last_accessed"`
	CreatedAt      int64  `db:"created_at"`
}

func toSessionRow(s domain.SessionIdentity) sessionRow {
	return sessionRow{
		ID:             s.ID,
		DeviceID:       s.DeviceID,
		PersistentUUID: s.PersistentID,
		SessionID:      s.SessionToken,
		IPAddress:      s.IPAddress,
		LastAccessed:   s.LastAccessedAt.UnixMilli(),
		CreatedAt:      s.CreatedAt.UnixMilli(),
	}
}

func (r sessionRow) identity() domain.SessionIdentity {
	return domain.SessionIdentity{
		ID:             r.ID,
		DeviceID:       r.DeviceID,
		PersistentID:   r.PersistentUUID,
		SessionToken:   r.SessionID,
		IPAddress:      r.IPAddress,
		LastAccessedAt: time.UnixMilli(r.LastAccessed).UTC(),
		CreatedAt:      time.UnixMilli(r.CreatedAt).UTC(),
	}
}

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and applies any
// pending migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("repository: opening sqlite db: %w", err)
	}
	// SQLite has a single writer; one connection keeps the conditional
	// upsert free of SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("repository: enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("repository: running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tableCount > 0 {
		if err := s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// keyFilter builds "(col = ? OR ...)" for keys.
func keyFilter(keys []domain.IdentifierKey) (string, []any, error) {
	if len(keys) == 0 {
		return "", nil, errEmptyKeys
	}
	conds := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		col, ok := keyColumns[k.Kind]
		if !ok {
			return "", nil, fmt.Errorf("repository: unknown identifier kind %q", k.Kind)
		}
		conds = append(conds, col+" = ?")
		args = append(args, k.Value)
	}
	return "(" + strings.Join(conds, " OR ") + ")", args, nil
}

func (s *SQLiteStore) FindLatestSession(ctx context.Context, keys []domain.IdentifierKey, since time.Time) (domain.SessionIdentity, bool, error) {
	where, args, err := keyFilter(keys)
	if err != nil {
		return domain.SessionIdentity{}, false, err
	}
	query := `SELECT * FROM sessions WHERE ` + where + `
		AND last_accessed > ?
		ORDER BY last_accessed DESC
		LIMIT 1`
	args = append(args, since.UnixMilli())

	var row sessionRow
	err = s.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SessionIdentity{}, false, nil
	}
	if err != nil {
		return domain.SessionIdentity{}, false, fmt.Errorf("repository: find latest session: %w", err)
	}
	return row.identity(), true, nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, in domain.SessionIdentity) error {
	const query = `
		INSERT INTO sessions (
			id, device_id, persistent_uuid, session_id,
			ip_address, last_accessed, created_at
		) VALUES (
			:id, :device_id, :persistent_uuid, :session_id,
			:ip_address, :last_accessed, :created_at
		)`
	if _, err := s.db.NamedExecContext(ctx, query, toSessionRow(in)); err != nil {
		return fmt.Errorf("repository: create session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, identifier string) ([]domain.SessionIdentity, error) {
	var rows []sessionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM sessions
		WHERE device_id = ? OR persistent_uuid = ? OR session_id = ?
		ORDER BY created_at DESC`,
		identifier, identifier, identifier,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: list sessions: %w", err)
	}
	out := make([]domain.SessionIdentity, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.identity())
	}
	return out, nil
}

// IncrementIfBelow relies on the upsert's WHERE clause: when the counter is
// already at limit no row is returned and nothing is written.
func (s *SQLiteStore) IncrementIfBelow(ctx context.Context, identity, date string, limit int) (int, bool, error) {
	if limit <= 0 {
		return 0, false, nil
	}
	var count int
	err := s.db.GetContext(ctx, &count, `
		INSERT INTO requests (identity, request_date, request_count) VALUES (?, ?, 1)
		ON CONFLICT(identity, request_date) DO UPDATE
			SET request_count = request_count + 1
			WHERE request_count < ?
		RETURNING request_count`,
		identity, date, limit,
	)
	if err == nil {
		return count, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("repository: increment request count: %w", err)
	}
	if err := s.db.GetContext(ctx, &count,
		`SELECT request_count FROM requests WHERE identity = ? AND request_date = ?`,
		identity, date,
	); err != nil {
		return 0, false, fmt.Errorf("repository: read request count: %w", err)
	}
	return count, false, nil
}
