// SPDX-License-Identifier: MIT

// Package catalog implements the authoritative asset store: assets, their
// labels, and the files inside each archive. The scheduler and most workers
// read from replica snapshots; only the intake path holds a write handle.
package catalog

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/persistence/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS label (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		dirname TEXT NOT NULL UNIQUE
	);`,
	`CREATE TABLE IF NOT EXISTS filetype (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	);`,
	`CREATE TABLE IF NOT EXISTS asset (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		label INTEGER NOT NULL,
		managed INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (label) REFERENCES label (id)
	);`,
	`CREATE TABLE IF NOT EXISTS file (
		id INTEGER PRIMARY KEY,
		asset INTEGER NOT NULL,
		basename TEXT NOT NULL,
		dirname TEXT NOT NULL,
		size INTEGER,
		filetype INTEGER,
		digest TEXT,
		UNIQUE (asset, dirname, basename),
		FOREIGN KEY (asset) REFERENCES asset (id) ON DELETE CASCADE,
		FOREIGN KEY (filetype) REFERENCES filetype (id)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_file_asset ON file (asset);`,
	`CREATE INDEX IF NOT EXISTS idx_file_filetype ON file (asset, filetype);`,
	`CREATE INDEX IF NOT EXISTS idx_file_digest ON file (digest);`,
}

// Asset is one catalog row.
type Asset struct {
	ID      int64
	Cname   string
	LabelID int64
	Managed bool
}

// Store is a catalog database handle. The zero value is not usable; open
// with Open or OpenReplica.
type Store struct {
	db       *sql.DB
	path     string
	readOnly bool
	logger   zerolog.Logger

	mu        sync.Mutex
	filetypes map[string]int64
	labels    map[string]int64
	cnames    map[int64]string
}

// Open opens (creating when absent) the live catalog store at dbPath and
// applies the schema. First startup and restart take the same path.
func Open(dbPath string) (*Store, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("catalog: apply schema: %w", err)
		}
	}
	return newStore(db, dbPath, false), nil
}

// OpenReplica opens a read-replica snapshot. Writes fail at the driver.
func OpenReplica(dbPath string) (*Store, error) {
	db, err := sqlite.OpenReadOnly(dbPath)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return newStore(db, dbPath, true), nil
}

func newStore(db *sql.DB, path string, readOnly bool) *Store {
	return &Store{
		db:        db,
		path:      path,
		readOnly:  readOnly,
		logger:    log.WithComponent("catalog"),
		filetypes: make(map[string]int64),
		labels:    make(map[string]int64),
		cnames:    make(map[int64]string),
	}
}

// Close releases the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the store's database file path.
func (s *Store) Path() string {
	return s.path
}

// ExportReplica snapshots the live store beside itself for replica readers.
func (s *Store) ExportReplica() error {
	if s.readOnly {
		return fmt.Errorf("catalog: cannot export replica from a replica")
	}
	replica := config.ReplicaPath(s.path)
	if err := sqlite.ExportReplica(s.db, replica); err != nil {
		return err
	}
	s.logger.Info().
		Str(log.FieldEvent, "catalog.replica_exported").
		Str(log.FieldReplica, replica).
		Msg("replica exported")
	return nil
}
