// SPDX-License-Identifier: MIT

package cueparse

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/names"
	"github.com/jdswan/sonicat/internal/task"
)

// Parser is the cue_parser worker. The asset's archive is restored to
// scratch before the task arrives; file paths are relative to DataPath.
type Parser struct {
	logger zerolog.Logger
}

// NewParser builds the worker.
func NewParser() *Parser {
	return &Parser{logger: log.WithComponent(config.AppCueParser)}
}

// Name implements worker.Worker.
func (w *Parser) Name() string {
	return config.AppCueParser
}

// RunTask parses every cue file of the task's asset. Tasks from other apps
// pass through untouched.
func (w *Parser) RunTask(ctx context.Context, t *task.Task) error {
	if t.AppName != config.AppCueParser {
		return nil
	}
	if t.Action != config.ActionParse {
		return task.Validation("cue_parser: unknown action %q", t.Action)
	}
	if t.Args.DataPath == "" {
		return task.Validation("cue_parser: no data path for asset %d", t.Args.AssetID)
	}
	if len(t.Args.FilePaths) == 0 {
		return task.Validation("cue_parser: no file paths for asset %d", t.Args.AssetID)
	}

	sheets := make([]task.CueSheet, 0, len(t.Args.FilePaths))
	for _, fp := range t.Args.FilePaths {
		if err := ctx.Err(); err != nil {
			return task.External("cue_parser: %v", err)
		}
		if names.FileExtension(fp.Path) != "cue" {
			w.logger.Debug().
				Str(log.FieldTaskID, t.ID).
				Str("path", fp.Path).
				Msg("skipping non-cue file")
			continue
		}
		sheet, err := w.parseFile(t, fp)
		if err != nil {
			return err
		}
		sheets = append(sheets, sheet)
	}
	if len(sheets) == 0 {
		return task.Validation("cue_parser: no cue files for asset %d", t.Args.AssetID)
	}
	if err := t.AttachResult(task.PayloadCue, sheets); err != nil {
		return err
	}
	w.logger.Info().
		Str(log.FieldEvent, "cueparse.parsed").
		Str(log.FieldTaskID, t.ID).
		Int64(log.FieldAssetID, t.Args.AssetID).
		Int("files", len(sheets)).
		Msg("parsed")
	return nil
}

func (w *Parser) parseFile(t *task.Task, fp task.FilePath) (task.CueSheet, error) {
	src := filepath.Join(t.Args.DataPath, filepath.FromSlash(fp.Path))
	f, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return task.CueSheet{}, task.Validation("cue_parser: %s: file missing from extracted asset", fp.Path)
		}
		return task.CueSheet{}, task.External("cue_parser: open %s: %v", fp.Path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	sheet, err := Parse(f)
	if err != nil {
		return task.CueSheet{}, task.Validation("cue_parser: %s: %v", fp.Path, err)
	}
	sheet.FileID = fp.ID
	return sheet, nil
}
