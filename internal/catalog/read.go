// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"

	"github.com/jdswan/sonicat/internal/task"
)

// ErrNotFound reports a lookup that matched no row.
var ErrNotFound = errors.New("catalog: not found")

// AllAssetIDs enumerates every asset id, ordered.
func (s *Store) AllAssetIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM asset ORDER BY id;")
	if err != nil {
		return nil, fmt.Errorf("catalog: all asset ids: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// AssetID resolves a cname to its asset id.
func (s *Store) AssetID(ctx context.Context, cname string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM asset WHERE name = ?;", cname).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: asset %q", ErrNotFound, cname)
	}
	if err != nil {
		return 0, fmt.Errorf("catalog: asset id: %w", err)
	}
	return id, nil
}

// AssetData returns the asset row.
func (s *Store) AssetData(ctx context.Context, id int64) (Asset, error) {
	var a Asset
	var managed int
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, label, managed FROM asset WHERE id = ?;", id).
		Scan(&a.ID, &a.Cname, &a.LabelID, &managed)
	if errors.Is(err, sql.ErrNoRows) {
		return a, fmt.Errorf("%w: asset %d", ErrNotFound, id)
	}
	if err != nil {
		return a, fmt.Errorf("catalog: asset data: %w", err)
	}
	a.Managed = managed != 0
	return a, nil
}

// AssetIDsByLabel enumerates assets under one label.
func (s *Store) AssetIDsByLabel(ctx context.Context, labelID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM asset WHERE label = ? ORDER BY id;", labelID)
	if err != nil {
		return nil, fmt.Errorf("catalog: assets by label: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// AssetExists reports whether a cname is already cataloged.
func (s *Store) AssetExists(ctx context.Context, cname string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM asset WHERE name = ?;", cname).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("catalog: asset exists: %w", err)
	}
	return true, nil
}

// AssetIsManaged reports the asset's managed flag.
func (s *Store) AssetIsManaged(ctx context.Context, id int64) (bool, error) {
	var managed int
	err := s.db.QueryRowContext(ctx, "SELECT managed FROM asset WHERE id = ?;", id).Scan(&managed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: asset %d", ErrNotFound, id)
	}
	if err != nil {
		return false, fmt.Errorf("catalog: asset managed: %w", err)
	}
	return managed != 0, nil
}

// FileData returns one file row as wire file data.
func (s *Store) FileData(ctx context.Context, fileID int64) (task.FileData, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT f.id, f.basename, f.dirname, COALESCE(f.size, 0), COALESCE(t.name, ''), COALESCE(f.digest, '')
		FROM file f LEFT JOIN filetype t ON f.filetype = t.id
		WHERE f.id = ?;`, fileID)
	var fd task.FileData
	err := row.Scan(&fd.ID, &fd.Basename, &fd.Dirname, &fd.Size, &fd.Filetype, &fd.Digest)
	if errors.Is(err, sql.ErrNoRows) {
		return fd, fmt.Errorf("%w: file %d", ErrNotFound, fileID)
	}
	if err != nil {
		return fd, fmt.Errorf("catalog: file data: %w", err)
	}
	return fd, nil
}

// FileDataByAsset lists all file rows of an asset.
func (s *Store) FileDataByAsset(ctx context.Context, assetID int64) ([]task.FileData, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.basename, f.dirname, COALESCE(f.size, 0), COALESCE(t.name, ''), COALESCE(f.digest, '')
		FROM file f LEFT JOIN filetype t ON f.filetype = t.id
		WHERE f.asset = ? ORDER BY f.id;`, assetID)
	if err != nil {
		return nil, fmt.Errorf("catalog: files by asset: %w", err)
	}
	defer rows.Close()
	return scanFileData(rows)
}

// FileDataByAssetAndType lists an asset's file rows of one extension.
func (s *Store) FileDataByAssetAndType(ctx context.Context, assetID int64, ext string) ([]task.FileData, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.basename, f.dirname, COALESCE(f.size, 0), t.name, COALESCE(f.digest, '')
		FROM file f JOIN filetype t ON f.filetype = t.id
		WHERE f.asset = ? AND t.name = ? ORDER BY f.id;`, assetID, ext)
	if err != nil {
		return nil, fmt.Errorf("catalog: files by asset and type: %w", err)
	}
	defer rows.Close()
	return scanFileData(rows)
}

// FilePathsByAssetAndType pairs file ids with asset-relative paths for one
// extension. Dirname is stored without a leading slash; the pair joins to
// "<dirname>/<basename>" ("<basename>" at the asset root).
func (s *Store) FilePathsByAssetAndType(ctx context.Context, assetID int64, ext string) ([]task.FilePath, error) {
	data, err := s.FileDataByAssetAndType(ctx, assetID, ext)
	if err != nil {
		return nil, err
	}
	paths := make([]task.FilePath, 0, len(data))
	for _, fd := range data {
		paths = append(paths, task.FilePath{ID: fd.ID, Path: path.Join(fd.Dirname, fd.Basename)})
	}
	return paths, nil
}

// FileIDsByDigest lists file ids sharing a content digest.
func (s *Store) FileIDsByDigest(ctx context.Context, digest string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM file WHERE digest = ? ORDER BY id;", digest)
	if err != nil {
		return nil, fmt.Errorf("catalog: files by digest: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// FileLabels maps every file id to its asset's label id.
func (s *Store) FileLabels(ctx context.Context) (map[int64]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT file.id, asset.label FROM file JOIN asset ON file.asset = asset.id;")
	if err != nil {
		return nil, fmt.Errorf("catalog: file labels: %w", err)
	}
	defer rows.Close()
	out := make(map[int64]int64)
	for rows.Next() {
		var fileID, labelID int64
		if err := rows.Scan(&fileID, &labelID); err != nil {
			return nil, fmt.Errorf("catalog: file labels: %w", err)
		}
		out[fileID] = labelID
	}
	return out, rows.Err()
}

// LabelIDByName resolves a label's id by its display name.
func (s *Store) LabelIDByName(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM label WHERE name = ?;", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: label %q", ErrNotFound, name)
	}
	if err != nil {
		return 0, fmt.Errorf("catalog: label id: %w", err)
	}
	return id, nil
}

// LabelIDByDirname resolves a label's id by its filesystem directory.
func (s *Store) LabelIDByDirname(ctx context.Context, dirname string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM label WHERE dirname = ?;", dirname).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: label dir %q", ErrNotFound, dirname)
	}
	if err != nil {
		return 0, fmt.Errorf("catalog: label id by dirname: %w", err)
	}
	return id, nil
}

// LabelName returns the label's display name.
func (s *Store) LabelName(ctx context.Context, id int64) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, "SELECT name FROM label WHERE id = ?;", id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: label %d", ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("catalog: label name: %w", err)
	}
	return name, nil
}

// LabelDir returns the label's filesystem directory.
func (s *Store) LabelDir(ctx context.Context, id int64) (string, error) {
	var dir string
	err := s.db.QueryRowContext(ctx, "SELECT dirname FROM label WHERE id = ?;", id).Scan(&dir)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: label %d", ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("catalog: label dir: %w", err)
	}
	return dir, nil
}

// AllLabelDirs lists every label directory.
func (s *Store) AllLabelDirs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT dirname FROM label ORDER BY dirname;")
	if err != nil {
		return nil, fmt.Errorf("catalog: label dirs: %w", err)
	}
	defer rows.Close()
	var dirs []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("catalog: scan label dir: %w", err)
		}
		dirs = append(dirs, d)
	}
	return dirs, rows.Err()
}

// FiletypeID resolves a lowercased extension to its id.
func (s *Store) FiletypeID(ctx context.Context, ext string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM filetype WHERE name = ?;", lowerExt(ext)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: filetype %q", ErrNotFound, ext)
	}
	if err != nil {
		return 0, fmt.Errorf("catalog: filetype id: %w", err)
	}
	return id, nil
}

// CountAssets returns the asset row count.
func (s *Store) CountAssets(ctx context.Context) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM asset;")
}

// CountLabels returns the label row count.
func (s *Store) CountLabels(ctx context.Context) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM label;")
}

// CountFiles returns the file row count.
func (s *Store) CountFiles(ctx context.Context) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM file;")
}

func (s *Store) count(ctx context.Context, query string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("catalog: count: %w", err)
	}
	return n, nil
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("catalog: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanFileData(rows *sql.Rows) ([]task.FileData, error) {
	var out []task.FileData
	for rows.Next() {
		var fd task.FileData
		if err := rows.Scan(&fd.ID, &fd.Basename, &fd.Dirname, &fd.Size, &fd.Filetype, &fd.Digest); err != nil {
			return nil, fmt.Errorf("catalog: scan file: %w", err)
		}
		out = append(out, fd)
	}
	return out, rows.Err()
}
