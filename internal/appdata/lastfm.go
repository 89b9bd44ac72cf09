// SPDX-License-Identifier: MIT

package appdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/task"
)

var lastfmSchema = []string{
	`CREATE TABLE IF NOT EXISTS albumresult (
		id INTEGER PRIMARY KEY,
		catalog TEXT NOT NULL,
		asset INTEGER NOT NULL,
		title TEXT NOT NULL,
		year INTEGER NOT NULL,
		country TEXT,
		cover_url TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS trackresult (
		id INTEGER PRIMARY KEY,
		catalog TEXT NOT NULL,
		file INTEGER NOT NULL,
		title TEXT NOT NULL,
		country TEXT,
		cover_url TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS tag (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	);`,
	`CREATE TABLE IF NOT EXISTS albumtags (
		id INTEGER PRIMARY KEY,
		albumresult INTEGER NOT NULL,
		tag INTEGER NOT NULL,
		FOREIGN KEY (albumresult) REFERENCES albumresult (id) ON DELETE CASCADE,
		FOREIGN KEY (tag) REFERENCES tag (id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS tracktags (
		id INTEGER PRIMARY KEY,
		trackresult INTEGER NOT NULL,
		tag INTEGER NOT NULL,
		FOREIGN KEY (trackresult) REFERENCES trackresult (id) ON DELETE CASCADE,
		FOREIGN KEY (tag) REFERENCES tag (id) ON DELETE CASCADE
	);`,
}

// LastfmStore persists accepted Last.fm album matches and their per-track
// results.
type LastfmStore struct {
	base
}

// OpenLastfm opens (creating when absent) the live Last.fm store.
func OpenLastfm(dbPath string) (*LastfmStore, error) {
	b, err := openBase(config.AppLastfm, dbPath, lastfmSchema, true)
	if err != nil {
		return nil, err
	}
	return &LastfmStore{base: b}, nil
}

// RecordMatch commits one accepted album and its tracks in a single
// ledger-gated transaction. Returns false when the asset was already
// recorded.
func (s *LastfmStore) RecordMatch(ctx context.Context, catalog string, assetID int64, m task.AlbumMatch) (bool, error) {
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
		`INSERT INTO albumresult (catalog, asset, title, year, country, cover_url)
		 VALUES (?,?,?,?,?,?);`,
		catalog, assetID, m.Title, m.Year, nullable(m.Country), nullable(m.CoverURL))
	if err != nil {
		return false, fmt.Errorf("appdata %s: album result: %w", s.app, err)
	}
	albumID, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("appdata %s: album id: %w", s.app, err)
	}
	if err := attachTagsTx(ctx, tx, "albumtags", "albumresult", albumID, m.Tags); err != nil {
		return false, fmt.Errorf("appdata %s: %w", s.app, err)
	}

	for _, track := range m.Tracks {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO trackresult (catalog, file, title) VALUES (?,?,?);",
			catalog, track.FileID, track.Title)
		if err != nil {
			return false, fmt.Errorf("appdata %s: track result: %w", s.app, err)
		}
		trackID, err := res.LastInsertId()
		if err != nil {
			return false, fmt.Errorf("appdata %s: track id: %w", s.app, err)
		}
		if err := attachTagsTx(ctx, tx, "tracktags", "trackresult", trackID, track.Tags); err != nil {
			return false, fmt.Errorf("appdata %s: %w", s.app, err)
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
		Int("tracks", len(m.Tracks)).
		Msg("album match recorded")
	return true, nil
}

func attachTagsTx(ctx context.Context, tx *sql.Tx, joinTable, joinColumn string, ownerID int64, tags []string) error {
	for _, tag := range tags {
		tagID, err := ensureNameTx(ctx, tx, "tag", strings.ToLower(tag))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+joinTable+" ("+joinColumn+", tag) VALUES (?,?);",
			ownerID, tagID); err != nil {
			return fmt.Errorf("%s: %w", joinTable, err)
		}
	}
	return nil
}

// AlbumTitle returns the recorded album title for an asset, or "".
func (s *LastfmStore) AlbumTitle(ctx context.Context, catalog string, assetID int64) (string, error) {
	var title string
	err := s.db.QueryRowContext(ctx,
		"SELECT title FROM albumresult WHERE catalog = ? AND asset = ?;",
		catalog, assetID).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("appdata %s: album title: %w", s.app, err)
	}
	return title, nil
}
