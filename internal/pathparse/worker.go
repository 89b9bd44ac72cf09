// SPDX-License-Identifier: MIT

package pathparse

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/task"
)

// Tokenizer is the path_parser worker. It is stateless: the file paths to
// parse arrive in the task and the results ride back on it.
type Tokenizer struct {
	logger zerolog.Logger
}

// NewTokenizer builds the worker.
func NewTokenizer() *Tokenizer {
	return &Tokenizer{logger: log.WithComponent(config.AppPathParser)}
}

// Name implements worker.Worker.
func (w *Tokenizer) Name() string {
	return config.AppPathParser
}

// RunTask parses every file path in the task and attaches one parse record
// per file. Tasks from other apps pass through untouched.
func (w *Tokenizer) RunTask(ctx context.Context, t *task.Task) error {
	if t.AppName != config.AppPathParser {
		return nil
	}
	if t.Action != config.ActionParse {
		return task.Validation("path_parser: unknown action %q", t.Action)
	}
	if len(t.Args.FilePaths) == 0 {
		return task.Validation("path_parser: no file paths for asset %d", t.Args.AssetID)
	}

	parses := make([]task.FileParse, 0, len(t.Args.FilePaths))
	for _, fp := range t.Args.FilePaths {
		if err := ctx.Err(); err != nil {
			return task.External("path_parser: %v", err)
		}
		// The parser expects the asset name as the leading segment and
		// discards it.
		parsed := Parse(t.Args.Cname + "/" + fp.Path)
		parses = append(parses, task.FileParse{
			FileID: fp.ID,
			Tempo:  parsed.Tempo,
			Key:    parsed.Key,
			Tokens: parsed.Tokens,
		})
	}
	if err := t.AttachResult(task.PayloadParse, parses); err != nil {
		return err
	}
	w.logger.Info().
		Str(log.FieldEvent, "pathparse.parsed").
		Str(log.FieldTaskID, t.ID).
		Int64(log.FieldAssetID, t.Args.AssetID).
		Int("files", len(parses)).
		Msg("parsed")
	return nil
}
