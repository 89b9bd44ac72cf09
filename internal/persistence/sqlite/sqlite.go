// SPDX-License-Identifier: MIT

// Package sqlite opens and snapshots the catalog and derived-data stores.
// All stores share the same operational posture: WAL journaling, a busy
// timeout so concurrent readers back off instead of failing, and foreign
// keys enforced. Read replicas are taken with VACUUM INTO so a snapshot is
// always a consistent, compacted database file.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver
)

// Config defines standard SQLite operational parameters.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int // 1 for single-writer stores, larger for WAL readers
}

// DefaultConfig suits the worker stores: one writer, short busy timeout.
func DefaultConfig() Config {
	return Config{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 1,
	}
}

// ReplicaConfig suits read-only replica consumers.
func ReplicaConfig() Config {
	return Config{
		BusyTimeout:  2 * time.Second,
		MaxOpenConns: 4,
	}
}

// Open initializes a SQLite connection pool with mandatory PRAGMAs applied
// to every pooled connection via the DSN.
func Open(dbPath string, cfg Config) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: create store dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}

	return db, nil
}

// OpenReadOnly opens an existing store file without write access. Replica
// consumers use this so a worker can never mutate a snapshot.
func OpenReadOnly(dbPath string) (*sql.DB, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("sqlite: replica missing: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(2000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open read-only failed: %w", err)
	}
	db.SetMaxOpenConns(ReplicaConfig().MaxOpenConns)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping read-only failed: %w", err)
	}
	return db, nil
}

// ExportReplica snapshots the live database into replicaPath. The snapshot
// is written to a temporary sibling and renamed into place so consumers
// never observe a half-written replica.
func ExportReplica(db *sql.DB, replicaPath string) error {
	tmp := fmt.Sprintf("%s.tmp-%d", replicaPath, os.Getpid())
	_ = os.Remove(tmp) // VACUUM INTO refuses to overwrite

	if _, err := db.Exec("VACUUM INTO ?;", tmp); err != nil {
		return fmt.Errorf("sqlite: snapshot failed: %w", err)
	}
	if err := os.Rename(tmp, replicaPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("sqlite: publish replica: %w", err)
	}
	return nil
}
