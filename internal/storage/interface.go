/*
Package storage implements the persistent store for learned patterns,
tool analytics and verification metrics.

This package provides SQLite-based storage with graceful degradation: if the
database is unavailable the store disables itself and every operation becomes
a no-op, so in-memory learning never fails because of persistence.

The database defaults to ~/.flowlearn/flowlearn.db and uses modernc.org/sqlite
(a pure Go, CGo-free implementation).
*/
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Storage defines the interface for persistent storage operations.
type Storage interface {
	// Init initializes the database and runs migrations.
	Init() error

	// Write persists a batch of records in one transaction.
	Write(ctx context.Context, records []Record) error

	// Load reads back everything persisted.
	Load(ctx context.Context) (Snapshot, error)

	// Stats reports row counts.
	Stats(ctx context.Context) (Stats, error)

	// Cleanup removes raw history older than retention. Patterns,
	// combinations and verification metrics are kept.
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)

	// Clear removes all persisted state.
	Clear(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db       *sql.DB
	dbPath   string
	enabled  bool
	logger   *zap.Logger
	mu       sync.Mutex
	initOnce sync.Once
}

// DefaultPath returns ~/.flowlearn/flowlearn.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".flowlearn", "flowlearn.db"), nil
}

// NewStorage creates a new SQLite storage instance at path, or at
// DefaultPath when path is empty. If the directory doesn't exist, Init
// creates it. If no path can be resolved, the storage is disabled but
// operations will not fail.
func NewStorage(path string, logger *zap.Logger) *SQLiteStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			logger.Warn("storage disabled", zap.Error(err))
			return &SQLiteStorage{logger: logger}
		}
		path = p
	}
	return &SQLiteStorage{
		dbPath:  path,
		enabled: true,
		logger:  logger,
	}
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.dbPath
}

// Enabled reports whether the store is usable.
func (s *SQLiteStorage) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled && s.db != nil
}

// Init initializes the database and runs migrations.
//
// If initialization fails, storage is disabled and subsequent operations
// become no-ops (graceful degradation).
func (s *SQLiteStorage) Init() error {
	if !s.enabled {
		return nil
	}

	var initErr error
	s.initOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		fail := func(err error) {
			initErr = err
			s.enabled = false
			s.logger.Warn("storage disabled", zap.String("path", s.dbPath), zap.Error(err))
		}

		if err := os.MkdirAll(filepath.Dir(s.dbPath), 0o755); err != nil {
			fail(fmt.Errorf("failed to create db directory: %w", err))
			return
		}

		db, err := sql.Open("sqlite", s.dbPath)
		if err != nil {
			fail(fmt.Errorf("failed to open database: %w", err))
			return
		}
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
		s.db = db

		if err := db.Ping(); err != nil {
			fail(fmt.Errorf("failed to ping database: %w", err))
			return
		}

		if err := s.runMigrations(); err != nil {
			fail(fmt.Errorf("failed to run migrations: %w", err))
			return
		}
	})

	return initErr
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.db = nil
	return nil
}

// usable reports whether operations should hit the database. Caller holds s.mu.
func (s *SQLiteStorage) usable() bool {
	return s.enabled && s.db != nil
}
