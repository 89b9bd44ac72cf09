// SPDX-License-Identifier: MIT

package appdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/persistence/sqlite"
)

// Pair ordering convention, enforced on every write so commutative pairs
// are stored once: catalog1 <= catalog2; if the catalogs are equal,
// file1 < file2.
var harmonicSchema = []string{
	`CREATE TABLE IF NOT EXISTS data (
		id INTEGER PRIMARY KEY,
		catalog1 TEXT NOT NULL,
		file1 INTEGER NOT NULL,
		catalog2 TEXT NOT NULL,
		file2 INTEGER NOT NULL,
		distance REAL NOT NULL,
		UNIQUE (catalog1, file1, catalog2, file2)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_harmonic_distance ON data (distance);`,
}

// Distance is one stored pair with its harmonic distance.
type Distance struct {
	Catalog1 string
	File1    int64
	Catalog2 string
	File2    int64
	Distance float64
}

// HarmonicStore persists pairwise harmonic distances between analyzed
// files, within one catalog or across two. Unlike the worker stores it is
// batch-written and keyed by file pair, so it carries no ledgers.
type HarmonicStore struct {
	db   *sql.DB
	path string
}

// OpenHarmonic opens (creating when absent) the harmonic-distance store.
func OpenHarmonic(dbPath string) (*HarmonicStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("appdata harmonics: %w", err)
	}
	for _, stmt := range harmonicSchema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("appdata harmonics: apply schema: %w", err)
		}
	}
	return &HarmonicStore{db: db, path: dbPath}, nil
}

// Close releases the underlying handle.
func (s *HarmonicStore) Close() error {
	return s.db.Close()
}

// AddDistance stores one pair, normalizing to the ordering convention.
// Re-adding a stored pair is a no-op.
func (s *HarmonicStore) AddDistance(ctx context.Context, d Distance) error {
	d = normalizePair(d)
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO data (catalog1, file1, catalog2, file2, distance) VALUES (?,?,?,?,?);",
		d.Catalog1, d.File1, d.Catalog2, d.File2, d.Distance)
	if err != nil {
		return fmt.Errorf("appdata harmonics: add distance: %w", err)
	}
	return nil
}

// DistanceBetween returns the stored distance for a pair in either order.
func (s *HarmonicStore) DistanceBetween(ctx context.Context, catalog1 string, file1 int64, catalog2 string, file2 int64) (float64, bool, error) {
	d := normalizePair(Distance{Catalog1: catalog1, File1: file1, Catalog2: catalog2, File2: file2})
	var distance float64
	err := s.db.QueryRowContext(ctx,
		"SELECT distance FROM data WHERE catalog1 = ? AND file1 = ? AND catalog2 = ? AND file2 = ?;",
		d.Catalog1, d.File1, d.Catalog2, d.File2).Scan(&distance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("appdata harmonics: distance: %w", err)
	}
	return distance, true, nil
}

// SmallestDistances returns the n closest pairs.
func (s *HarmonicStore) SmallestDistances(ctx context.Context, n int) ([]Distance, error) {
	return s.selectDistances(ctx, "ASC", n)
}

// LargestDistances returns the n most distant pairs.
func (s *HarmonicStore) LargestDistances(ctx context.Context, n int) ([]Distance, error) {
	return s.selectDistances(ctx, "DESC", n)
}

func (s *HarmonicStore) selectDistances(ctx context.Context, order string, n int) ([]Distance, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT catalog1, file1, catalog2, file2, distance FROM data ORDER BY distance "+order+" LIMIT ?;", n)
	if err != nil {
		return nil, fmt.Errorf("appdata harmonics: select distances: %w", err)
	}
	defer rows.Close()
	var out []Distance
	for rows.Next() {
		var d Distance
		if err := rows.Scan(&d.Catalog1, &d.File1, &d.Catalog2, &d.File2, &d.Distance); err != nil {
			return nil, fmt.Errorf("appdata harmonics: select distances: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// LastPair returns the most recently written pair of a catalog, the resume
// point for an interrupted linear run. Zeroes when the store is empty.
func (s *HarmonicStore) LastPair(ctx context.Context, catalog string) (int64, int64, error) {
	var file1, file2 int64
	err := s.db.QueryRowContext(ctx,
		"SELECT file1, file2 FROM data WHERE catalog1 = ? AND catalog2 = ? ORDER BY id DESC LIMIT 1;",
		catalog, catalog).Scan(&file1, &file2)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("appdata harmonics: last pair: %w", err)
	}
	return file1, file2, nil
}

// AllDataByFile lists every stored pair touching a file, closest first.
func (s *HarmonicStore) AllDataByFile(ctx context.Context, catalog string, fileID int64) ([]Distance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT catalog1, file1, catalog2, file2, distance FROM data
		 WHERE (catalog1 = ? AND file1 = ?) OR (catalog2 = ? AND file2 = ?)
		 ORDER BY distance ASC;`,
		catalog, fileID, catalog, fileID)
	if err != nil {
		return nil, fmt.Errorf("appdata harmonics: by file: %w", err)
	}
	defer rows.Close()
	var out []Distance
	for rows.Next() {
		var d Distance
		if err := rows.Scan(&d.Catalog1, &d.File1, &d.Catalog2, &d.File2, &d.Distance); err != nil {
			return nil, fmt.Errorf("appdata harmonics: by file: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ExportReplica snapshots the store beside itself.
func (s *HarmonicStore) ExportReplica() error {
	return sqlite.ExportReplica(s.db, config.ReplicaPath(s.path))
}

func normalizePair(d Distance) Distance {
	swap := false
	switch {
	case d.Catalog1 > d.Catalog2:
		swap = true
	case d.Catalog1 == d.Catalog2 && d.File1 > d.File2:
		swap = true
	}
	if swap {
		d.Catalog1, d.Catalog2 = d.Catalog2, d.Catalog1
		d.File1, d.File2 = d.File2, d.File1
	}
	return d
}
