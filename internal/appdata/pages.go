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

var pagesSchema = []string{
	`CREATE TABLE IF NOT EXISTS result (
		id INTEGER PRIMARY KEY,
		catalog TEXT NOT NULL,
		asset INTEGER NOT NULL,
		name TEXT NOT NULL,
		site_id TEXT NOT NULL,
		size TEXT NOT NULL,
		downloads TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS tag (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	);`,
	`CREATE TABLE IF NOT EXISTS tags (
		id INTEGER PRIMARY KEY,
		result INTEGER NOT NULL,
		tag INTEGER NOT NULL,
		FOREIGN KEY (result) REFERENCES result (id) ON DELETE CASCADE,
		FOREIGN KEY (tag) REFERENCES tag (id) ON DELETE CASCADE
	);`,
}

// PagesStore persists tracker search hits, several rows per asset.
type PagesStore struct {
	base
}

// OpenPages opens (creating when absent) the live pages store.
func OpenPages(dbPath string) (*PagesStore, error) {
	b, err := openBase(config.AppRutracker, dbPath, pagesSchema, true)
	if err != nil {
		return nil, err
	}
	return &PagesStore{base: b}, nil
}

// RecordPages commits one asset's search hits in a single ledger-gated
// transaction. Returns false when the asset was already recorded.
func (s *PagesStore) RecordPages(ctx context.Context, catalog string, assetID int64, results []task.PageResult) (bool, error) {
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

	for _, r := range results {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO result (catalog, asset, name, site_id, size, downloads) VALUES (?,?,?,?,?,?);",
			catalog, assetID, r.Name, r.SiteID, r.Size, r.Downloads)
		if err != nil {
			return false, fmt.Errorf("appdata %s: result: %w", s.app, err)
		}
		resultID, err := res.LastInsertId()
		if err != nil {
			return false, fmt.Errorf("appdata %s: result id: %w", s.app, err)
		}
		for _, tag := range r.Tags {
			tagID, err := ensureNameTx(ctx, tx, "tag", strings.ToLower(tag))
			if err != nil {
				return false, fmt.Errorf("appdata %s: %w", s.app, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO tags (result, tag) VALUES (?,?);", resultID, tagID); err != nil {
				return false, fmt.Errorf("appdata %s: result tag: %w", s.app, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("appdata %s: commit: %w", s.app, err)
	}
	s.logger.Info().
		Str(log.FieldEvent, "appdata.pages_recorded").
		Str(log.FieldCatalog, catalog).
		Int64(log.FieldAssetID, assetID).
		Int("results", len(results)).
		Msg("tracker results recorded")
	return true, nil
}

// ResultCount counts recorded hits for an asset.
func (s *PagesStore) ResultCount(ctx context.Context, catalog string, assetID int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(id) FROM result WHERE catalog = ? AND asset = ?;",
		catalog, assetID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("appdata %s: result count: %w", s.app, err)
	}
	return n, nil
}
