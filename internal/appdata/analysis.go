// SPDX-License-Identifier: MIT

package appdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/persistence/sqlite"
	"github.com/jdswan/sonicat/internal/task"
)

// Audio data types. The seed rows pin these ids in every store.
const (
	DtypeDuration           = 1
	DtypeTempo              = 2
	DtypeChromaDistribution = 3
	DtypeBeatFrames         = 4
)

var analysisSchema = []string{
	`CREATE TABLE IF NOT EXISTS audiodata (
		id INTEGER PRIMARY KEY,
		file INTEGER NOT NULL,
		catalog TEXT NOT NULL,
		datatype INTEGER NOT NULL,
		datavalue TEXT,
		datafilepath TEXT,
		dataforeignkey INTEGER,
		FOREIGN KEY (datatype) REFERENCES audiodatatype (id)
	);`,
	`CREATE TABLE IF NOT EXISTS audiodatatype (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS chromadistribution (
		id INTEGER PRIMARY KEY,
		catalog TEXT NOT NULL,
		file INTEGER NOT NULL,
		c01 REAL NOT NULL, c02 REAL NOT NULL, c03 REAL NOT NULL,
		c04 REAL NOT NULL, c05 REAL NOT NULL, c06 REAL NOT NULL,
		c07 REAL NOT NULL, c08 REAL NOT NULL, c09 REAL NOT NULL,
		c10 REAL NOT NULL, c11 REAL NOT NULL, c12 REAL NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_audiodata_lookup ON audiodata (catalog, datatype, file);`,
	`INSERT OR REPLACE INTO audiodatatype (id, name) VALUES
		(1, 'duration'),
		(2, 'tempo'),
		(3, 'chroma_distribution'),
		(4, 'beat_frames');`,
}

// AnalysisStore persists measured audio features: scalars and artifact
// paths in audiodata, chroma distributions in their side table.
type AnalysisStore struct {
	base
}

// OpenAnalysis opens (creating when absent) the live analysis store.
func OpenAnalysis(dbPath string) (*AnalysisStore, error) {
	b, err := openBase(config.AppLibrosa, dbPath, analysisSchema, false)
	if err != nil {
		return nil, err
	}
	return &AnalysisStore{base: b}, nil
}

// OpenAnalysisReplica opens a read-replica snapshot of the analysis store.
// Metadata workers consult it for measured durations; the harmonics batch
// reads chroma distributions from it.
func OpenAnalysisReplica(dbPath string) (*AnalysisStore, error) {
	db, err := sqlite.OpenReadOnly(dbPath)
	if err != nil {
		return nil, fmt.Errorf("appdata %s: %w", config.AppLibrosa, err)
	}
	return &AnalysisStore{base: base{
		db:     db,
		app:    config.AppLibrosa,
		path:   dbPath,
		logger: log.WithComponent("appdata." + config.AppLibrosa),
	}}, nil
}

// RecordAnalysis commits every per-file measure of one asset in a single
// ledger-gated transaction. Returns false when the asset was already
// recorded and nothing was written.
func (s *AnalysisStore) RecordAnalysis(ctx context.Context, catalog string, assetID int64, files []task.FileAnalysis) (bool, error) {
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
		s.logger.Debug().
			Str(log.FieldEvent, "appdata.duplicate_absorbed").
			Str(log.FieldCatalog, catalog).
			Int64(log.FieldAssetID, assetID).
			Msg("asset already recorded")
		return false, nil
	}

	for _, f := range files {
		if f.Duration != "" {
			if err := insertValueTx(ctx, tx, f.FileID, catalog, DtypeDuration, f.Duration); err != nil {
				return false, fmt.Errorf("appdata %s: %w", s.app, err)
			}
		}
		if f.Tempo != "" {
			if err := insertValueTx(ctx, tx, f.FileID, catalog, DtypeTempo, f.Tempo); err != nil {
				return false, fmt.Errorf("appdata %s: %w", s.app, err)
			}
		}
		if f.BeatsPath != "" {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO audiodata (file, catalog, datatype, datafilepath) VALUES (?,?,?,?);",
				f.FileID, catalog, DtypeBeatFrames, f.BeatsPath); err != nil {
				return false, fmt.Errorf("appdata %s: beat frames: %w", s.app, err)
			}
		}
		if len(f.Chroma) > 0 {
			if err := insertChromaTx(ctx, tx, catalog, f.FileID, f.Chroma); err != nil {
				return false, fmt.Errorf("appdata %s: %w", s.app, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("appdata %s: commit: %w", s.app, err)
	}
	s.logger.Info().
		Str(log.FieldEvent, "appdata.analysis_recorded").
		Str(log.FieldCatalog, catalog).
		Int64(log.FieldAssetID, assetID).
		Int("files", len(files)).
		Msg("analysis recorded")
	return true, nil
}

func insertValueTx(ctx context.Context, tx *sql.Tx, fileID int64, catalog string, dtype int, value string) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO audiodata (file, catalog, datatype, datavalue) VALUES (?,?,?,?);",
		fileID, catalog, dtype, value)
	if err != nil {
		return fmt.Errorf("audiodata value dtype %d: %w", dtype, err)
	}
	return nil
}

func insertChromaTx(ctx context.Context, tx *sql.Tx, catalog string, fileID int64, dist []float64) error {
	if len(dist) != 12 {
		return fmt.Errorf("chroma distribution has %d channels, want 12", len(dist))
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO chromadistribution
			(catalog, file, c01, c02, c03, c04, c05, c06, c07, c08, c09, c10, c11, c12)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?);`,
		catalog, fileID,
		dist[0], dist[1], dist[2], dist[3], dist[4], dist[5],
		dist[6], dist[7], dist[8], dist[9], dist[10], dist[11])
	if err != nil {
		return fmt.Errorf("chromadistribution: %w", err)
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("chromadistribution id: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO audiodata (file, catalog, datatype, dataforeignkey) VALUES (?,?,?,?);",
		fileID, catalog, DtypeChromaDistribution, rowID)
	if err != nil {
		return fmt.Errorf("audiodata chroma key: %w", err)
	}
	return nil
}

// DataValue returns the scalar recorded for one (file, dtype), or "".
func (s *AnalysisStore) DataValue(ctx context.Context, catalog string, fileID int64, dtype int) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT datavalue FROM audiodata WHERE file = ? AND catalog = ? AND datatype = ?;",
		fileID, catalog, dtype).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("appdata %s: data value: %w", s.app, err)
	}
	return value, nil
}

// DataValues returns the scalars recorded for a set of files at one dtype,
// keyed by file id.
func (s *AnalysisStore) DataValues(ctx context.Context, catalog string, fileIDs []int64, dtype int) (map[int64]string, error) {
	if len(fileIDs) == 0 {
		return map[int64]string{}, nil
	}
	query := "SELECT file, datavalue FROM audiodata WHERE catalog = ? AND datatype = ? AND file IN (?" +
		repeatArg(len(fileIDs)-1) + ");"
	args := make([]any, 0, len(fileIDs)+2)
	args = append(args, catalog, dtype)
	for _, id := range fileIDs {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appdata %s: data values: %w", s.app, err)
	}
	defer rows.Close()
	out := make(map[int64]string, len(fileIDs))
	for rows.Next() {
		var (
			id    int64
			value sql.NullString
		)
		if err := rows.Scan(&id, &value); err != nil {
			return nil, fmt.Errorf("appdata %s: data values: %w", s.app, err)
		}
		if value.Valid {
			out[id] = value.String
		}
	}
	return out, rows.Err()
}

// FilesHavingData lists the file ids carrying a measure of one dtype.
func (s *AnalysisStore) FilesHavingData(ctx context.Context, catalog string, dtype int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT file FROM audiodata WHERE catalog = ? AND datatype = ? ORDER BY file ASC;",
		catalog, dtype)
	if err != nil {
		return nil, fmt.Errorf("appdata %s: files having data: %w", s.app, err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("appdata %s: files having data: %w", s.app, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ChromaDistributions returns every chroma distribution of a catalog keyed
// by file id, optionally bounded to file ids in (lbound, ubound).
func (s *AnalysisStore) ChromaDistributions(ctx context.Context, catalog string, lbound, ubound int64) (map[int64][]float64, error) {
	query := "SELECT file, c01, c02, c03, c04, c05, c06, c07, c08, c09, c10, c11, c12 " +
		"FROM chromadistribution WHERE catalog = ?"
	args := []any{catalog}
	if lbound > 0 {
		query += " AND file > ?"
		args = append(args, lbound)
	}
	if ubound > 0 {
		query += " AND file < ?"
		args = append(args, ubound)
	}
	query += " ORDER BY file ASC;"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appdata %s: chroma distributions: %w", s.app, err)
	}
	defer rows.Close()
	out := make(map[int64][]float64)
	for rows.Next() {
		var (
			id   int64
			dist = make([]float64, 12)
		)
		if err := rows.Scan(&id,
			&dist[0], &dist[1], &dist[2], &dist[3], &dist[4], &dist[5],
			&dist[6], &dist[7], &dist[8], &dist[9], &dist[10], &dist[11]); err != nil {
			return nil, fmt.Errorf("appdata %s: chroma distributions: %w", s.app, err)
		}
		out[id] = dist
	}
	return out, rows.Err()
}
