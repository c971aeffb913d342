package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Driver names a session store backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverDynamoDB Driver = "dynamodb"
)

var (
	ErrInvalidConfig = errors.New("repository: invalid configuration")
	ErrInvalidDriver = errors.New("repository: invalid store driver")
)

// Option configures Open.
type Option func(*openConfig)

type openConfig struct {
	sqlitePath  string
	postgresDSN string
	dynamo      dynamodbAPI
	table       string
	redisClient redis.UniversalClient
	redisTTL    time.Duration
}

func WithSQLitePath(path string) Option {
	return func(c *openConfig) {
		c.sqlitePath = path
	}
}

func WithPostgresDSN(dsn string) Option {
	return func(c *openConfig) {
		c.postgresDSN = dsn
	}
}

// WithDynamoDB sets the client and table for the dynamodb driver.
func WithDynamoDB(api dynamodbAPI, table string) Option {
	return func(c *openConfig) {
		c.dynamo = api
		c.table = table
	}
}

// WithRedisCounters moves daily counters to Redis, whatever the driver.
func WithRedisCounters(client redis.UniversalClient, ttl time.Duration) Option {
	return func(c *openConfig) {
		c.redisClient = client
		c.redisTTL = ttl
	}
}

// Open builds the Store for driver.
func Open(driver Driver, opts ...Option) (Store, error) {
	cfg := &openConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var (
		store Store
		err   error
	)
	switch driver {
	case DriverMemory, "":
		store = NewMemoryStore()
	case DriverSQLite:
		if cfg.sqlitePath == "" {
			return nil, fmt.Errorf("%w: sqlite path is required", ErrInvalidConfig)
		}
		store, err = NewSQLiteStore(cfg.sqlitePath)
	case DriverPostgres:
		if cfg.postgresDSN == "" {
			return nil, fmt.Errorf("%w: postgres dsn is required", ErrInvalidConfig)
		}
		store, err = NewPostgresStore(cfg.postgresDSN)
	case DriverDynamoDB:
		if cfg.dynamo == nil {
			return nil, fmt.Errorf("%w: dynamodb client is required", ErrInvalidConfig)
		}
		store, err = NewDynamoStore(cfg.dynamo, cfg.table)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDriver, driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.redisClient != nil {
		counters, err := NewRedisCounter(cfg.redisClient, cfg.redisTTL)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		store = WithCounters(store, counters)
	}
	return store, nil
}
