// SPDX-License-Identifier: MIT

package cueparse

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/task"
)

type cueFile struct {
	path    string
	content string
}

func cueTask(t *testing.T, files ...cueFile) *task.Task {
	t.Helper()
	dataPath := t.TempDir()
	var paths []task.FilePath
	for i, f := range files {
		full := filepath.Join(dataPath, filepath.FromSlash(f.path))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(f.content), 0o644))
		paths = append(paths, task.FilePath{ID: int64(i + 1), Path: f.path})
	}
	var maker task.Maker
	tk := maker.Make(config.AppCueParser, config.ActionParse, task.Args{
		Catalog:   "main",
		AssetID:   7,
		Cname:     "Acme Sounds - Greatest Cuts",
		DataPath:  dataPath,
		FilePaths: paths,
	})
	return &tk
}

func TestRunTaskParsesCueFiles(t *testing.T) {
	tk := cueTask(t, cueFile{path: "rip/album.cue", content: sampleSheet})

	w := NewParser()
	require.NoError(t, w.RunTask(context.Background(), tk))

	var sheets []task.CueSheet
	require.NoError(t, tk.ResultPayload(task.PayloadCue, &sheets))
	require.Len(t, sheets, 1)
	require.Equal(t, int64(1), sheets[0].FileID)
	require.Len(t, sheets[0].Tracks, 2)
}

func TestRunTaskSkipsNonCueFiles(t *testing.T) {
	tk := cueTask(t,
		cueFile{path: "album.cue", content: sampleSheet},
		cueFile{path: "readme.txt", content: "notes"})

	w := NewParser()
	require.NoError(t, w.RunTask(context.Background(), tk))

	var sheets []task.CueSheet
	require.NoError(t, tk.ResultPayload(task.PayloadCue, &sheets))
	require.Len(t, sheets, 1)
}

func TestRunTaskMissingFileIsValidation(t *testing.T) {
	tk := cueTask(t, cueFile{path: "album.cue", content: sampleSheet})
	tk.Args.FilePaths[0].Path = "vanished.cue"

	w := NewParser()
	err := w.RunTask(context.Background(), tk)
	require.Error(t, err)
	require.Equal(t, task.KindValidation, task.KindOf(err))
}

func TestRunTaskMalformedSheetIsValidation(t *testing.T) {
	tk := cueTask(t, cueFile{path: "album.cue", content: "REM empty\n"})

	w := NewParser()
	err := w.RunTask(context.Background(), tk)
	require.Error(t, err)
	require.Equal(t, task.KindValidation, task.KindOf(err))
}

func TestRunTaskForeignAppPassesThrough(t *testing.T) {
	var maker task.Maker
	tk := maker.Make(config.AppLibrosa, config.ActionBasic, task.Args{})

	w := NewParser()
	require.NoError(t, w.RunTask(context.Background(), &tk))
	require.Nil(t, tk.Result)
	require.Empty(t, tk.Results)
}

func TestRunTaskRejectsUnknownAction(t *testing.T) {
	var maker task.Maker
	tk := maker.Make(config.AppCueParser, config.ActionMove, task.Args{})

	w := NewParser()
	err := w.RunTask(context.Background(), &tk)
	require.Error(t, err)
	require.Equal(t, task.KindValidation, task.KindOf(err))
}
