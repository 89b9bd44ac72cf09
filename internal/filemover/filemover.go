// SPDX-License-Identifier: MIT

// Package filemover implements the file_mover worker: the single process
// allowed to mutate the archive tree and the scratch directory. Every task
// performs one filesystem effect — move, remove, archive, restore — and the
// success outcome reflects whether the effect holds, so a redelivered task
// whose effect already landed completes without touching anything.
//
// This is the only package in the module that may import os/exec; the
// archive codec is a rar/unrar subprocess per the catalog's on-disk format.
package filemover

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/fsutil"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/task"
)

// Mover is the file_mover worker.
type Mover struct {
	roots  []string // confinement roots for every destructive target
	run    runFunc
	logger zerolog.Logger
}

// New builds the worker. Destructive operations are confined to the
// configured catalog roots plus the system scratch directory.
func New(cfg *config.AppConfig) *Mover {
	roots := []string{os.TempDir()}
	for _, entry := range cfg.Catalogs {
		for _, root := range []string{entry.Path.Managed, entry.Path.Intake, entry.Path.Export} {
			if root != "" {
				roots = append(roots, root)
			}
		}
	}
	return &Mover{
		roots:  roots,
		run:    runCommand,
		logger: log.WithComponent(config.AppFileMover),
	}
}

// Name implements worker.Worker.
func (m *Mover) Name() string {
	return config.AppFileMover
}

// RunTask performs the task's filesystem effect. Tasks from other apps pass
// through untouched on their way back to the scheduler.
func (m *Mover) RunTask(ctx context.Context, t *task.Task) error {
	if t.AppName != config.AppFileMover {
		return nil
	}
	switch t.Action {
	case config.ActionMove:
		return m.move(t)
	case config.ActionRemove:
		return m.remove(t)
	case config.ActionArchive:
		return m.archive(ctx, t)
	case config.ActionRestore:
		return m.restore(ctx, t)
	default:
		return task.Validation("file_mover: unknown action %q", t.Action)
	}
}

// confine resolves path against the allowed roots. The first root that
// contains it wins.
func (m *Mover) confine(path string) (string, error) {
	var lastErr error
	for _, root := range m.roots {
		resolved, err := fsutil.Confine(root, path)
		if err == nil {
			return resolved, nil
		}
		lastErr = err
	}
	return "", task.Validation("file_mover: %q outside every configured root: %v", path, lastErr)
}

func (m *Mover) move(t *task.Task) error {
	if t.Args.From == "" || t.Args.To == "" {
		return task.Validation("file_mover: move needs from and to")
	}
	from, err := m.confine(t.Args.From)
	if err != nil {
		return err
	}
	to, err := m.confine(t.Args.To)
	if err != nil {
		return err
	}
	if _, err := os.Stat(from); os.IsNotExist(err) {
		if _, destErr := os.Stat(to); destErr == nil {
			m.logger.Debug().
				Str(log.FieldEvent, "filemover.already_moved").
				Str(log.FieldPath, to).
				Msg("source gone, destination present")
			return nil
		}
		return task.Validation("file_mover: move source missing: %s", from)
	}
	if err := fsutil.MoveAll(from, to); err != nil {
		return task.External("file_mover: %v", err)
	}
	m.logger.Info().
		Str(log.FieldEvent, "filemover.moved").
		Str(log.FieldTaskID, t.ID).
		Str(log.FieldPath, to).
		Msg("moved")
	return nil
}

func (m *Mover) remove(t *task.Task) error {
	if t.Args.DataPath == "" {
		return task.Validation("file_mover: remove needs a path")
	}
	path, err := m.confine(t.Args.DataPath)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(path); err != nil {
		return task.External("file_mover: remove: %v", err)
	}
	m.logger.Info().
		Str(log.FieldEvent, "filemover.removed").
		Str(log.FieldTaskID, t.ID).
		Str(log.FieldPath, path).
		Msg("removed")
	return nil
}

// archive packs the source directory into <name>.rar beside itself, moves
// the produced archive to the destination, and removes the source. The
// codec is invoked from the source's parent with the directory name as
// argument so archive members carry relative paths.
func (m *Mover) archive(ctx context.Context, t *task.Task) error {
	if t.Args.From == "" || t.Args.To == "" {
		return task.Validation("file_mover: archive needs from and to")
	}
	from, err := m.confine(t.Args.From)
	if err != nil {
		return err
	}
	to, err := m.confine(t.Args.To)
	if err != nil {
		return err
	}
	if !fsutil.DirExists(from) {
		if fsutil.IsRegularFile(to) == nil {
			m.logger.Debug().
				Str(log.FieldEvent, "filemover.already_archived").
				Str(log.FieldArchive, to).
				Msg("source gone, archive present")
			return nil
		}
		return task.Validation("file_mover: archive source missing: %s", from)
	}

	parent := filepath.Dir(from)
	name := filepath.Base(from)
	if err := m.run(ctx, parent, "rar", "a", name+".rar", name); err != nil {
		return task.External("file_mover: rar: %v", err)
	}
	produced := filepath.Join(parent, name+".rar")
	if err := fsutil.MoveAll(produced, to); err != nil {
		return task.External("file_mover: %v", err)
	}
	if err := os.RemoveAll(from); err != nil {
		return task.External("file_mover: remove archived source: %v", err)
	}
	m.logger.Info().
		Str(log.FieldEvent, "filemover.archived").
		Str(log.FieldTaskID, t.ID).
		Str(log.FieldArchive, to).
		Msg("archived")
	return nil
}

// restore copies the archive beside the destination, extracts it there, and
// removes the copy. The extraction directory name equals the archive's stem,
// which is the asset's cname.
func (m *Mover) restore(ctx context.Context, t *task.Task) error {
	if t.Args.From == "" || t.Args.To == "" {
		return task.Validation("file_mover: restore needs from and to")
	}
	from, err := m.confine(t.Args.From)
	if err != nil {
		return err
	}
	to, err := m.confine(t.Args.To)
	if err != nil {
		return err
	}
	if fsutil.DirExists(to) {
		m.logger.Debug().
			Str(log.FieldEvent, "filemover.already_restored").
			Str(log.FieldPath, to).
			Msg("destination present")
		return nil
	}
	if err := fsutil.IsRegularFile(from); err != nil {
		return task.Validation("file_mover: restore source: %v", err)
	}

	parent := filepath.Dir(to)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return task.External("file_mover: %v", err)
	}
	name := filepath.Base(to)
	copied := filepath.Join(parent, name+".rar")
	if err := fsutil.CopyFile(from, copied); err != nil {
		return task.External("file_mover: %v", err)
	}
	defer func() { _ = os.Remove(copied) }()

	if err := m.run(ctx, parent, "unrar", "x", name+".rar"); err != nil {
		return task.External("file_mover: unrar: %v", err)
	}
	m.logger.Info().
		Str(log.FieldEvent, "filemover.restored").
		Str(log.FieldTaskID, t.ID).
		Str(log.FieldPath, to).
		Str(log.FieldArchive, from).
		Msg("restored")
	return nil
}
