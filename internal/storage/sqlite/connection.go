package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/veritas/internal/common"
	_ "modernc.org/sqlite"
)

// DB manages the SQLite database connection underlying the persistence
// layer. A single relational store carries documents,
// sections, claims, vectors and supersessions; vector similarity is
// computed in-process rather than via a native index extension (see
// DESIGN.md "Persistence Layer").
type DB struct {
	db     *sql.DB
	logger arbor.ILogger
	config *common.SQLiteConfig
}

// New opens (and, on first run, initializes) the SQLite database described
// by config.
func New(logger arbor.ILogger, config *common.SQLiteConfig) (*DB, error) {
	if config.Path != ":memory:" {
		dir := filepath.Dir(config.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	if config.ResetOnStartup && config.Path != ":memory:" {
		if err := resetDatabase(logger, config.Path); err != nil {
			return nil, fmt.Errorf("failed to reset database: %w", err)
		}
	}

	logger.Debug().Str("path", config.Path).Msg("Opening database connection")

	// modernc.org/sqlite registers the "sqlite" driver name (not "sqlite3").
	sqlDB, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single writer connection avoids SQLITE_BUSY under the single-event-
	// loop concurrency model; busy_timeout covers the rare
	// contention window during WAL checkpoints.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	s := &DB{db: sqlDB, logger: logger, config: config}

	if err := s.configure(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	if err := s.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	logger.Info().Str("path", config.Path).Msg("SQLite database initialized")
	return s, nil
}

func (s *DB) configure() error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA cache_size = -%d", s.config.CacheSizeMB*1024),
		fmt.Sprintf("PRAGMA busy_timeout = %d", s.config.BusyTimeoutMS),
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	if s.config.WALMode && s.config.Path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

// DB returns the underlying *sql.DB, used by the LLM audit logger which
// shares this same database.
func (s *DB) DB() *sql.DB { return s.db }

func (s *DB) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

func (s *DB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func resetDatabase(logger arbor.ILogger, dbPath string) error {
	logger.Warn().Str("path", dbPath).Msg("Resetting database (deleting all data)")
	for _, suffix := range []string{"", "-wal", "-shm"} {
		p := dbPath + suffix
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete %s: %w", p, err)
		}
	}
	return nil
}
