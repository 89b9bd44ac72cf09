// SPDX-License-Identifier: MIT

// Package inventory implements the inventory worker: the survey step of the
// intake chain. Given an extracted asset directory it removes blacklisted
// noise, lowers uppercase extensions, and emits the asset and file records
// that the catalog commit consumes downstream.
package inventory

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"

	"github.com/jdswan/sonicat/internal/catalog"
	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/names"
	"github.com/jdswan/sonicat/internal/task"
)

// Surveyor is the inventory worker.
type Surveyor struct {
	cfg       *config.AppConfig
	blacklist *Blacklist
	digests   bool

	mu       sync.Mutex
	replicas map[string]*catalog.Store

	logger zerolog.Logger
}

// New builds the worker, loading the configured blacklist.
func New(cfg *config.AppConfig) (*Surveyor, error) {
	bl, err := LoadBlacklist(cfg.BlacklistPath())
	if err != nil {
		return nil, err
	}
	return &Surveyor{
		cfg:       cfg,
		blacklist: bl,
		digests:   cfg.Digests,
		replicas:  make(map[string]*catalog.Store),
		logger:    log.WithComponent(config.AppInventory),
	}, nil
}

// Name implements worker.Worker.
func (s *Surveyor) Name() string {
	return config.AppInventory
}

// LoadReplicas opens read-only catalog snapshots for the duplicate check.
// A catalog with no replica yet is treated as empty; the first export after
// its first intake creates one.
func (s *Surveyor) LoadReplicas(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, store := range s.replicas {
		_ = store.Close()
		delete(s.replicas, name)
	}
	for _, name := range s.cfg.CatalogNames() {
		path := config.ReplicaPath(s.cfg.CatalogDBPath(name))
		if _, err := os.Stat(path); err != nil {
			s.logger.Warn().
				Str(log.FieldCatalog, name).
				Str(log.FieldReplica, path).
				Msg("no replica yet, treating catalog as empty")
			continue
		}
		store, err := catalog.OpenReplica(path)
		if err != nil {
			return fmt.Errorf("inventory: open replica for %s: %w", name, err)
		}
		s.replicas[name] = store
	}
	return nil
}

// Close releases the replica handles.
func (s *Surveyor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, store := range s.replicas {
		_ = store.Close()
		delete(s.replicas, name)
	}
	return nil
}

// RunTask surveys the asset directory named by the task. Tasks from other
// apps pass through untouched.
func (s *Surveyor) RunTask(ctx context.Context, t *task.Task) error {
	if t.AppName != config.AppInventory {
		return nil
	}
	if t.Action != config.ActionInventory {
		return task.Validation("inventory: unknown action %q", t.Action)
	}
	root := t.Args.DataPath
	if root == "" {
		return task.Validation("inventory: no data path")
	}
	cname := filepath.Base(root)
	if err := s.precheck(ctx, t.Args.Catalog, root, cname); err != nil {
		return err
	}
	if err := s.cleanse(root); err != nil {
		return task.External("inventory: cleanse: %v", err)
	}
	survey, err := s.survey(ctx, root)
	if err != nil {
		return task.External("inventory: survey: %v", err)
	}
	if len(survey) == 0 {
		return task.Validation("inventory: no files remain after cleanse: %s", root)
	}

	label, _, _ := names.Divide(cname)
	if err := t.AttachResult(task.PayloadAssetData, task.AssetData{
		Label:   label,
		Cname:   cname,
		Managed: 1,
	}); err != nil {
		return err
	}
	if err := t.AttachResult(task.PayloadFileData, survey); err != nil {
		return err
	}
	s.logger.Info().
		Str(log.FieldEvent, "inventory.surveyed").
		Str(log.FieldTaskID, t.ID).
		Str(log.FieldCname, cname).
		Int("files", len(survey)).
		Msg("surveyed")
	return nil
}

func (s *Surveyor) precheck(ctx context.Context, catalogName, root, cname string) error {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return task.Validation("inventory: not a directory: %s", root)
	}
	if !names.IsCanonical(cname) {
		return task.Validation("inventory: not a canonical name: %q", cname)
	}
	if _, ok := s.cfg.Catalogs[catalogName]; !ok {
		return task.Validation("inventory: unknown catalog %q", catalogName)
	}
	s.mu.Lock()
	replica := s.replicas[catalogName]
	s.mu.Unlock()
	if replica == nil {
		return nil
	}
	exists, err := replica.AssetExists(ctx, cname)
	if err != nil {
		return task.External("inventory: duplicate check: %v", err)
	}
	if exists {
		return task.Validation("inventory: already cataloged: %q", cname)
	}
	return nil
}

// cleanse removes blacklisted entries and lowers uppercase extensions. Both
// scans plan first and mutate after, so a partial walk never half-applies.
func (s *Surveyor) cleanse(root string) error {
	dirs, files, err := s.blacklist.BanList(root)
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
		s.logger.Debug().Str(log.FieldPath, dir).Msg("removed blacklisted directory")
	}
	for _, file := range files {
		if err := os.Remove(file); err != nil {
			return err
		}
		s.logger.Debug().Str(log.FieldPath, file).Msg("removed blacklisted file")
	}
	pairs, err := ExtensionFixes(root)
	if err != nil {
		return err
	}
	for _, pair := range pairs {
		if err := os.Rename(pair[0], pair[1]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Surveyor) survey(ctx context.Context, root string) (task.Survey, error) {
	survey := make(task.Survey)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, filepath.Dir(path))
		if err != nil {
			return err
		}
		dirname := ""
		if rel != "." {
			dirname = filepath.ToSlash(rel)
		}
		fd := task.FileData{
			Basename: d.Name(),
			Dirname:  dirname,
			Size:     info.Size(),
			Filetype: names.FileExtension(d.Name()),
		}
		if s.digests {
			digest, err := fileDigest(path)
			if err != nil {
				return err
			}
			fd.Digest = digest
		}
		key := d.Name()
		if dirname != "" {
			key = dirname + "/" + d.Name()
		}
		survey[key] = fd
		return nil
	})
	if err != nil {
		return nil, err
	}
	return survey, nil
}

// fileDigest returns the BLAKE2b-512 hex digest of the file's contents.
func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	h, err := blake2b.New512(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
