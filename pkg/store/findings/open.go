package findings

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/de-tools/cloud-sentinel/pkg/store/duckdb"
	"github.com/de-tools/cloud-sentinel/pkg/store/memory"
	"github.com/de-tools/cloud-sentinel/pkg/store/mongodb"
)

const (
	DriverDuckDB  = "duckdb"
	DriverMongoDB = "mongodb"
	DriverMemory  = "memory"
)

// Settings selects and tunes the persistence backend
type Settings struct {
	Driver string
	// DuckDBPath is the database file of the duckdb driver (default: sentinel.db)
	DuckDBPath    string
	MongoURI      string
	MongoDatabase string
	// OpTimeout bounds every backend call (default: 5s)
	OpTimeout time.Duration
	// ConnectTimeout bounds backend construction (default: 5s)
	ConnectTimeout time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		Driver:         DriverDuckDB,
		DuckDBPath:     "sentinel.db",
		MongoDatabase:  "sentinel",
		OpTimeout:      5 * time.Second,
		ConnectTimeout: 5 * time.Second,
	}
}

func ValidDriver(driver string) bool {
	switch driver {
	case DriverDuckDB, DriverMongoDB, DriverMemory:
		return true
	}
	return false
}

// Open builds the configured backend. When the backend cannot be reached the
// store falls back to the in-process backend and reports a degraded capability;
// only an unknown driver is an error.
func Open(ctx context.Context, settings Settings, clock domain.Clock) (Store, error) {
	logger := zerolog.Ctx(ctx)
	defaults := DefaultSettings()
	if settings.Driver == "" {
		settings.Driver = defaults.Driver
	}
	if settings.DuckDBPath == "" {
		settings.DuckDBPath = defaults.DuckDBPath
	}
	if settings.MongoDatabase == "" {
		settings.MongoDatabase = defaults.MongoDatabase
	}
	if settings.ConnectTimeout <= 0 {
		settings.ConnectTimeout = defaults.ConnectTimeout
	}
	if !ValidDriver(settings.Driver) {
		return nil, domain.NewSetupError("open store", fmt.Errorf("unknown store driver %q", settings.Driver))
	}

	backend, err := openBackend(ctx, settings)
	if err != nil {
		logger.Warn().Err(err).
			Str("driver", settings.Driver).
			Msg("store backend unavailable, falling back to in-memory store")
		return NewStore(memory.NewStore(), domain.Degraded(err.Error()), settings.OpTimeout, clock), nil
	}

	logger.Debug().Str("driver", backend.Name()).Msg("store backend ready")
	return NewStore(backend, domain.Live(), settings.OpTimeout, clock), nil
}

func openBackend(ctx context.Context, settings Settings) (Backend, error) {
	switch settings.Driver {
	case DriverMemory:
		return memory.NewStore(), nil
	case DriverDuckDB:
		db, err := duckdb.NewDB(duckdb.Settings{DbPath: settings.DuckDBPath})
		if err != nil {
			return nil, err
		}
		return duckdb.NewFindingStore(db)
	case DriverMongoDB:
		return mongodb.NewStore(ctx, mongodb.Settings{
			URI:            settings.MongoURI,
			Database:       settings.MongoDatabase,
			ConnectTimeout: settings.ConnectTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown store driver %q", settings.Driver)
	}
}
