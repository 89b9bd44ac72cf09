// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/names"
	"github.com/jdswan/sonicat/internal/task"
)

// EnsureLabel resolves a label by dirname, inserting it when missing.
// The dirname is the label's identity on disk; the display name is kept
// from the first asset that introduces the label.
func (s *Store) EnsureLabel(ctx context.Context, name, dirname string) (int64, error) {
	id, err := s.LabelIDByDirname(ctx, dirname)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, "INSERT INTO label (name, dirname) VALUES (?, ?);", name, dirname)
	if err != nil {
		return 0, fmt.Errorf("catalog: insert label: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("catalog: label id after insert: %w", err)
	}
	s.mu.Lock()
	s.labels[name] = id
	s.mu.Unlock()
	return id, nil
}

// EnsureFiletype resolves a lowercased extension, inserting it when missing.
func (s *Store) EnsureFiletype(ctx context.Context, ext string) (int64, error) {
	id, err := s.FiletypeID(ctx, ext)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, "INSERT INTO filetype (name) VALUES (?);", lowerExt(ext))
	if err != nil {
		return 0, fmt.Errorf("catalog: insert filetype: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("catalog: filetype id after insert: %w", err)
	}
	s.mu.Lock()
	s.filetypes[lowerExt(ext)] = id
	s.mu.Unlock()
	return id, nil
}

// IntakeAsset commits one surveyed asset in a single transaction: label
// (resolved by dirname, inserted when new), asset row, and every file row.
// Either the whole intake lands or the store is unchanged.
func (s *Store) IntakeAsset(ctx context.Context, ad task.AssetData, survey task.Survey) (int64, error) {
	label := ad.Label
	if label == "" {
		label, _, _ = names.Divide(ad.Cname)
	}
	dirname := names.LabelDir(label)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("catalog: begin intake: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	labelID, err := ensureLabelTx(ctx, tx, label, dirname)
	if err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO asset (name, label, managed) VALUES (?, ?, ?);",
		ad.Cname, labelID, ad.Managed)
	if err != nil {
		return 0, fmt.Errorf("catalog: insert asset %q: %w", ad.Cname, err)
	}
	assetID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("catalog: asset id after insert: %w", err)
	}

	// Deterministic insert order keeps file ids stable for identical surveys.
	keys := make([]string, 0, len(survey))
	for key := range survey {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	filetypes := map[string]int64{}
	for _, key := range keys {
		fd := survey[key]
		var filetypeID any
		if fd.Filetype != "" {
			ext := lowerExt(fd.Filetype)
			id, ok := filetypes[ext]
			if !ok {
				id, err = ensureFiletypeTx(ctx, tx, ext)
				if err != nil {
					return 0, err
				}
				filetypes[ext] = id
			}
			filetypeID = id
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO file (asset, basename, dirname, size, filetype, digest)
			VALUES (?, ?, ?, ?, ?, NULLIF(?, ''));`,
			assetID, fd.Basename, fd.Dirname, fd.Size, filetypeID, fd.Digest); err != nil {
			return 0, fmt.Errorf("catalog: insert file %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("catalog: commit intake: %w", err)
	}

	s.mu.Lock()
	s.labels[label] = labelID
	s.cnames[assetID] = ad.Cname
	for ext, id := range filetypes {
		s.filetypes[ext] = id
	}
	s.mu.Unlock()

	s.logger.Info().
		Str(log.FieldEvent, "catalog.asset_intaken").
		Str(log.FieldCname, ad.Cname).
		Int64(log.FieldAssetID, assetID).
		Int("files", len(survey)).
		Msg("asset committed")
	return assetID, nil
}

func ensureLabelTx(ctx context.Context, tx *sql.Tx, name, dirname string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, "SELECT id FROM label WHERE dirname = ?;", dirname).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("catalog: label lookup: %w", err)
	}
	res, err := tx.ExecContext(ctx, "INSERT INTO label (name, dirname) VALUES (?, ?);", name, dirname)
	if err != nil {
		return 0, fmt.Errorf("catalog: insert label: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("catalog: label id after insert: %w", err)
	}
	return id, nil
}

func ensureFiletypeTx(ctx context.Context, tx *sql.Tx, ext string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, "SELECT id FROM filetype WHERE name = ?;", ext).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("catalog: filetype lookup: %w", err)
	}
	res, err := tx.ExecContext(ctx, "INSERT INTO filetype (name) VALUES (?);", ext)
	if err != nil {
		return 0, fmt.Errorf("catalog: insert filetype: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("catalog: filetype id after insert: %w", err)
	}
	return id, nil
}

// UpdateAssetName renames an asset.
func (s *Store) UpdateAssetName(ctx context.Context, assetID int64, newName string) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE asset SET name = ? WHERE id = ?;", newName, assetID); err != nil {
		return fmt.Errorf("catalog: rename asset: %w", err)
	}
	s.invalidateAsset(assetID)
	return nil
}

// UpdateAssetLabel moves an asset to another label.
func (s *Store) UpdateAssetLabel(ctx context.Context, assetID, labelID int64) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE asset SET label = ? WHERE id = ?;", labelID, assetID); err != nil {
		return fmt.Errorf("catalog: relabel asset: %w", err)
	}
	s.invalidateAsset(assetID)
	return nil
}

// SetAssetManaged flips the managed flag.
func (s *Store) SetAssetManaged(ctx context.Context, assetID int64, managed bool) error {
	v := 0
	if managed {
		v = 1
	}
	if _, err := s.db.ExecContext(ctx, "UPDATE asset SET managed = ? WHERE id = ?;", v, assetID); err != nil {
		return fmt.Errorf("catalog: set managed: %w", err)
	}
	return nil
}

// RemoveAsset purges an asset; file rows cascade.
func (s *Store) RemoveAsset(ctx context.Context, assetID int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM asset WHERE id = ?;", assetID); err != nil {
		return fmt.Errorf("catalog: remove asset: %w", err)
	}
	s.invalidateAsset(assetID)
	return nil
}

// UpdateFileDigest records a file's content digest.
func (s *Store) UpdateFileDigest(ctx context.Context, fileID int64, digest string) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE file SET digest = ? WHERE id = ?;", digest, fileID); err != nil {
		return fmt.Errorf("catalog: update digest: %w", err)
	}
	return nil
}
