// SPDX-License-Identifier: MIT

// Package analysis implements the librosa worker. Each task names an
// extracted asset and its WAV files; the worker measures duration, tempo,
// beat positions, and the chroma distribution per file, writes beat frames
// as an npy artifact, and rides the measures back on the task for the
// app_data commit.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/jdswan/sonicat/internal/analysis/dsp"
	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/names"
	"github.com/jdswan/sonicat/internal/task"
)

// Analyzer is the librosa worker.
type Analyzer struct {
	cfg    *config.AppConfig
	logger zerolog.Logger
}

// New builds the worker.
func New(cfg *config.AppConfig) *Analyzer {
	return &Analyzer{
		cfg:    cfg,
		logger: log.WithComponent(config.AppLibrosa),
	}
}

// Name implements worker.Worker.
func (a *Analyzer) Name() string {
	return config.AppLibrosa
}

// RunTask analyzes every WAV file of the task's asset. Tasks from other
// apps pass through untouched.
func (a *Analyzer) RunTask(ctx context.Context, t *task.Task) error {
	if t.AppName != config.AppLibrosa {
		return nil
	}
	if t.Action != config.ActionBasic {
		return task.Validation("librosa: unknown action %q", t.Action)
	}
	if t.Args.DataPath == "" {
		return task.Validation("librosa: no data path for asset %d", t.Args.AssetID)
	}
	if len(t.Args.FilePaths) == 0 {
		return task.Validation("librosa: no file paths for asset %d", t.Args.AssetID)
	}

	results := make([]task.FileAnalysis, 0, len(t.Args.FilePaths))
	for _, fp := range t.Args.FilePaths {
		if err := ctx.Err(); err != nil {
			return task.External("librosa: %v", err)
		}
		if names.FileExtension(fp.Path) != "wav" {
			a.logger.Debug().
				Str(log.FieldTaskID, t.ID).
				Str("path", fp.Path).
				Msg("skipping non-wav file")
			continue
		}
		fa, err := a.analyzeFile(t, fp)
		if err != nil {
			return err
		}
		results = append(results, fa)
	}
	if len(results) == 0 {
		return task.Validation("librosa: no wav files for asset %d", t.Args.AssetID)
	}
	if err := t.AttachResult(task.PayloadAnalysis, results); err != nil {
		return err
	}
	a.logger.Info().
		Str(log.FieldEvent, "analysis.measured").
		Str(log.FieldTaskID, t.ID).
		Int64(log.FieldAssetID, t.Args.AssetID).
		Int("files", len(results)).
		Msg("analyzed")
	return nil
}

func (a *Analyzer) analyzeFile(t *task.Task, fp task.FilePath) (task.FileAnalysis, error) {
	src := filepath.Join(t.Args.DataPath, filepath.FromSlash(fp.Path))
	f, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return task.FileAnalysis{}, task.Validation("librosa: %s: file missing from extracted asset", fp.Path)
		}
		return task.FileAnalysis{}, task.External("librosa: open %s: %v", fp.Path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	sig, err := dsp.DecodeWAV(f)
	if err != nil {
		return task.FileAnalysis{}, task.Validation("librosa: %s: %v", fp.Path, err)
	}
	res, err := dsp.Analyze(sig)
	if err != nil {
		return task.FileAnalysis{}, task.Validation("librosa: %s: %v", fp.Path, err)
	}

	beatsPath, err := a.writeBeatFrames(t, fp.ID, res.BeatFrames)
	if err != nil {
		return task.FileAnalysis{}, task.External("librosa: %v", err)
	}
	return task.FileAnalysis{
		FileID:    fp.ID,
		Duration:  formatDecimal(res.Duration, 3),
		Tempo:     formatDecimal(res.Tempo, 1),
		BeatsPath: beatsPath,
		Chroma:    res.Chroma,
	}, nil
}

// writeBeatFrames stores the npy artifact under the features tree and
// returns its path relative to the data root, slash-separated.
func (a *Analyzer) writeBeatFrames(t *task.Task, fileID int64, frames []int) (string, error) {
	dir := filepath.Join(
		a.cfg.FeaturesPath(),
		t.Args.Catalog,
		names.LabelDirFromCname(t.Args.Cname),
		t.Args.Cname,
	)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("artifact dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%d-librosa-beat_frames.npy", fileID))
	if err := writeArtifact(path, encodeNpyInt64(frames)); err != nil {
		return "", err
	}
	rel, err := filepath.Rel(a.cfg.DataRoot(), path)
	if err != nil {
		return "", fmt.Errorf("relativize artifact path: %w", err)
	}
	return filepath.ToSlash(rel), nil
}

func formatDecimal(v float64, places int) string {
	return fmt.Sprintf("%.*f", places, v)
}
