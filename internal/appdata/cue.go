// SPDX-License-Identifier: MIT

package appdata

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/task"
)

var cueSchema = []string{
	`CREATE TABLE IF NOT EXISTS cuesheet (
		id INTEGER PRIMARY KEY,
		file INTEGER NOT NULL,
		catalog TEXT NOT NULL,
		title TEXT,
		performer TEXT,
		audiofile TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS cuetrack (
		id INTEGER PRIMARY KEY,
		sheet INTEGER NOT NULL,
		number INTEGER NOT NULL,
		title TEXT,
		performer TEXT,
		startindex TEXT,
		FOREIGN KEY (sheet) REFERENCES cuesheet (id)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_cuesheet_file ON cuesheet (catalog, file);`,
}

// CueStore persists parsed cue sheets and their track listings.
type CueStore struct {
	base
}

// OpenCue opens (creating when absent) the live cue store.
func OpenCue(dbPath string) (*CueStore, error) {
	b, err := openBase(config.AppCueParser, dbPath, cueSchema, false)
	if err != nil {
		return nil, err
	}
	return &CueStore{base: b}, nil
}

// RecordSheets commits one asset's cue sheets in a single ledger-gated
// transaction. Returns false when the asset was already recorded.
func (s *CueStore) RecordSheets(ctx context.Context, catalog string, assetID int64, sheets []task.CueSheet) (bool, error) {
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

	for _, sheet := range sheets {
		if err := insertSheetTx(ctx, tx, catalog, sheet); err != nil {
			return false, fmt.Errorf("appdata %s: %w", s.app, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("appdata %s: commit: %w", s.app, err)
	}
	s.logger.Info().
		Str(log.FieldEvent, "appdata.cue_recorded").
		Str(log.FieldCatalog, catalog).
		Int64(log.FieldAssetID, assetID).
		Int("sheets", len(sheets)).
		Msg("cue sheets recorded")
	return true, nil
}

func insertSheetTx(ctx context.Context, tx *sql.Tx, catalog string, sheet task.CueSheet) error {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO cuesheet (file, catalog, title, performer, audiofile) VALUES (?,?,?,?,?);",
		sheet.FileID, catalog, nullable(sheet.Title), nullable(sheet.Performer), nullable(sheet.AudioFile))
	if err != nil {
		return fmt.Errorf("cue sheet: %w", err)
	}
	sheetID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("cue sheet: %w", err)
	}
	for _, track := range sheet.Tracks {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO cuetrack (sheet, number, title, performer, startindex) VALUES (?,?,?,?,?);",
			sheetID, track.Number, nullable(track.Title), nullable(track.Performer), nullable(track.Index)); err != nil {
			return fmt.Errorf("cue track %d: %w", track.Number, err)
		}
	}
	return nil
}

// SheetByFile reads back the sheet recorded for a cue file, with its tracks
// in number order. sql.ErrNoRows surfaces when the file has none.
func (s *CueStore) SheetByFile(ctx context.Context, catalog string, fileID int64) (task.CueSheet, error) {
	var (
		sheet   task.CueSheet
		sheetID int64
		title   sql.NullString
		perf    sql.NullString
		audio   sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, performer, audiofile FROM cuesheet WHERE catalog = ? AND file = ?;",
		catalog, fileID).Scan(&sheetID, &title, &perf, &audio)
	if err != nil {
		return sheet, fmt.Errorf("appdata %s: sheet by file: %w", s.app, err)
	}
	sheet.FileID = fileID
	sheet.Title = title.String
	sheet.Performer = perf.String
	sheet.AudioFile = audio.String

	rows, err := s.db.QueryContext(ctx,
		"SELECT number, title, performer, startindex FROM cuetrack WHERE sheet = ? ORDER BY number ASC;",
		sheetID)
	if err != nil {
		return sheet, fmt.Errorf("appdata %s: sheet tracks: %w", s.app, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			track task.CueTrack
			tt    sql.NullString
			tp    sql.NullString
			ti    sql.NullString
		)
		if err := rows.Scan(&track.Number, &tt, &tp, &ti); err != nil {
			return sheet, fmt.Errorf("appdata %s: sheet tracks: %w", s.app, err)
		}
		track.Title = tt.String
		track.Performer = tp.String
		track.Index = ti.String
		sheet.Tracks = append(sheet.Tracks, track)
	}
	return sheet, rows.Err()
}
