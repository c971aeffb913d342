package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"draft-polisher/internal/domain"
)

// SessionModel is the sessions table for the GORM backend.
type SessionModel struct {
	ID             string `gorm:"primaryKey;type:text"`
	DeviceID       string `gorm:"type:text;not null;default:'';index:idx_sessions_device,priority:1"`
	PersistentUUID string `gorm:"column:persistent_uuid;type:text;not null;index:idx_sessions_persistent,priority:1"`
	SessionID      string `gorm:"type:text;not null;index:idx_sessions_token,priority:1"`
	IPAddress      string `gorm:"type:text;not null;default:''"`
	LastAccessed   int64  `gorm:"not null;index:idx_sessions_device,priority:2;index:idx_sessions_persistent,priority:2;index:idx_sessions_token,priority:2"`
	CreatedAt      int64  `gorm:"not null;autoCreateTime:false"`
}

func (SessionModel) TableName() string { return "sessions" }

// RequestModel is one daily counter.
type RequestModel struct {
	Identity     string `gorm:"primaryKey;type:text"`
	RequestDate  string `gorm:"primaryKey;type:text"`
	RequestCount int    `gorm:"not null;default:0"`
}

func (RequestModel) TableName() string { return "requests" }

// GormStore implements Store with GORM, normally on PostgreSQL.
type GormStore struct {
	db *gorm.DB
}

// NewPostgresStore connects to dsn and migrates the schema.
func NewPostgresStore(dsn string) (*GormStore, error) {
	return NewGormStore(postgres.Open(dsn))
}

// NewGormStore opens dialector and migrates the schema.
func NewGormStore(dialector gorm.Dialector) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: open gorm: %w", err)
	}
	if err := runGormMigrations(db); err != nil {
		return nil, fmt.Errorf("repository: run migrations: %w", err)
	}
	return &GormStore{db: db}, nil
}

func runGormMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "001_sessions_requests",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&SessionModel{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&RequestModel{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("sessions", "requests")
			},
		},
	})
	return m.Migrate()
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toSessionModel(in domain.SessionIdentity) SessionModel {
	r := toSessionRow(in)
	return SessionModel{
		ID:             r.ID,
		DeviceID:       r.DeviceID,
		PersistentUUID: r.PersistentUUID,
		SessionID:      r.SessionID,
		IPAddress:      r.IPAddress,
		LastAccessed:   r.LastAccessed,
		CreatedAt:      r.CreatedAt,
	}
}

func (m SessionModel) identity() domain.SessionIdentity {
	return sessionRow{
		ID:             m.ID,
		DeviceID:       m.DeviceID,
		PersistentUUID: m.PersistentUUID,
		SessionID:      m.SessionID,
		IPAddress:      m.IPAddress,
		LastAccessed:   m.LastAccessed,
		CreatedAt:      m.CreatedAt,
	}.identity()
}

func (s *GormStore) FindLatestSession(ctx context.Context, keys []domain.IdentifierKey, since time.Time) (domain.SessionIdentity, bool, error) {
	where, args, err := keyFilter(keys)
	if err != nil {
		return domain.SessionIdentity{}, false, err
	}
	var rows []SessionModel
	err = s.db.WithContext(ctx).
		Where(where, args...).
		Where("last_accessed > ?", since.UnixMilli()).
		Order("last_accessed DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return domain.SessionIdentity{}, false, fmt.Errorf("repository: find latest session: %w", err)
	}
	if len(rows) == 0 {
		return domain.SessionIdentity{}, false, nil
	}
	return rows[0].identity(), true, nil
}

func (s *GormStore) CreateSession(ctx context.Context, in domain.SessionIdentity) error {
	m := toSessionModel(in)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("repository: create session: %w", err)
	}
	return nil
}

func (s *GormStore) ListSessions(ctx context.Context, identifier string) ([]domain.SessionIdentity, error) {
	var rows []SessionModel
	err := s.db.WithContext(ctx).
		Where("device_id = ? OR persistent_uuid = ? OR session_id = ?", identifier, identifier, identifier).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("repository: list sessions: %w", err)
	}
	out := make([]domain.SessionIdentity, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.identity())
	}
	return out, nil
}

func (s *GormStore) IncrementIfBelow(ctx context.Context, identity, date string, limit int) (int, bool, error) {
	if limit <= 0 {
		return 0, false, nil
	}
	db := s.db.WithContext(ctx)

	var counts []int
	err := db.Raw(`
		INSERT INTO requests (identity, request_date, request_count) VALUES (?, ?, 1)
		ON CONFLICT (identity, request_date) DO UPDATE
			SET request_count = requests.request_count + 1
			WHERE requests.request_count < ?
		RETURNING request_count`,
		identity, date, limit,
	).Scan(&counts).Error
	if err != nil {
		return 0, false, fmt.Errorf("repository: increment request count: %w", err)
	}
	if len(counts) == 1 {
		return counts[0], true, nil
	}

	var row RequestModel
	err = db.Where("identity = ? AND request_date = ?", identity, date).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("repository: read request count: %w", err)
	}
	return row.RequestCount, false, nil
}
