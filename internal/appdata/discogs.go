// SPDX-License-Identifier: MIT

package appdata

import (
	"context"
	"fmt"
	"strings"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/task"
)

var discogsSchema = []string{
	`CREATE TABLE IF NOT EXISTS result (
		id INTEGER PRIMARY KEY,
		catalog TEXT NOT NULL,
		asset INTEGER NOT NULL,
		title TEXT NOT NULL,
		year INTEGER NOT NULL,
		discogsid INTEGER NOT NULL,
		country TEXT,
		cover_url TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS tag (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	);`,
	`CREATE TABLE IF NOT EXISTS resulttags (
		id INTEGER PRIMARY KEY,
		result INTEGER NOT NULL,
		tag INTEGER NOT NULL,
		FOREIGN KEY (result) REFERENCES result (id) ON DELETE CASCADE,
		FOREIGN KEY (tag) REFERENCES tag (id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS format (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	);`,
	`CREATE TABLE IF NOT EXISTS resultformats (
		id INTEGER PRIMARY KEY,
		result INTEGER NOT NULL,
		format INTEGER NOT NULL,
		FOREIGN KEY (result) REFERENCES result (id) ON DELETE CASCADE,
		FOREIGN KEY (format) REFERENCES format (id) ON DELETE CASCADE
	);`,
}

// DiscogsStore persists accepted Discogs release matches with their tag and
// format vocabularies.
type DiscogsStore struct {
	base
}

// OpenDiscogs opens (creating when absent) the live Discogs store.
func OpenDiscogs(dbPath string) (*DiscogsStore, error) {
	b, err := openBase(config.AppDiscogs, dbPath, discogsSchema, true)
	if err != nil {
		return nil, err
	}
	return &DiscogsStore{base: b}, nil
}

// RecordMatch commits one accepted release in a single ledger-gated
// transaction: the result row, its tags and its formats. Returns false
// when the asset was already recorded.
func (s *DiscogsStore) RecordMatch(ctx context.Context, catalog string, assetID int64, m task.AlbumMatch) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("appdata %s: begin: %w", s.app, err)
	}
	defer func() { _ = tx.Rollback() }()

	fresh, err := logAssetTx(ctx, tx, catalog, assetID)
	if err != nil {
		return false, fmt.Errorf("appdata %s: %w", s.app, err)
	}
	if !fresh {
		return false, nil
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO result (catalog, asset, title, year, discogsid, country, cover_url)
		 VALUES (?,?,?,?,?,?,?);`,
		catalog, assetID, m.Title, m.Year, m.SourceID, nullable(m.Country), nullable(m.CoverURL))
	if err != nil {
		return false, fmt.Errorf("appdata %s: result: %w", s.app, err)
	}
	resultID, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("appdata %s: result id: %w", s.app, err)
	}

	for _, tag := range m.Tags {
		tagID, err := ensureNameTx(ctx, tx, "tag", strings.ToLower(tag))
		if err != nil {
			return false, fmt.Errorf("appdata %s: %w", s.app, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO resulttags (result, tag) VALUES (?,?);", resultID, tagID); err != nil {
			return false, fmt.Errorf("appdata %s: result tag: %w", s.app, err)
		}
	}
	for _, format := range m.Formats {
		formatID, err := ensureNameTx(ctx, tx, "format", strings.ToLower(format))
		if err != nil {
			return false, fmt.Errorf("appdata %s: %w", s.app, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO resultformats (result, format) VALUES (?,?);", resultID, formatID); err != nil {
			return false, fmt.Errorf("appdata %s: result format: %w", s.app, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("appdata %s: commit: %w", s.app, err)
	}
	s.logger.Info().
		Str(log.FieldEvent, "appdata.match_recorded").
		Str(log.FieldCatalog, catalog).
		Int64(log.FieldAssetID, assetID).
		Str("title", m.Title).
		Msg("release match recorded")
	return true, nil
}

// ResultTags lists the tag names attached to an asset's recorded result.
func (s *DiscogsStore) ResultTags(ctx context.Context, catalog string, assetID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.name FROM resulttags rt
		 JOIN result r ON r.id = rt.result
		 JOIN tag t ON t.id = rt.tag
		 WHERE r.catalog = ? AND r.asset = ?
		 ORDER BY t.name ASC;`, catalog, assetID)
	if err != nil {
		return nil, fmt.Errorf("appdata %s: result tags: %w", s.app, err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("appdata %s: result tags: %w", s.app, err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
