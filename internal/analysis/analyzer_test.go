// SPDX-License-Identifier: MIT

package analysis

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/task"
)

func testAnalyzer(t *testing.T) (*Analyzer, *config.AppConfig) {
	t.Helper()
	cfg := &config.AppConfig{
		Root: t.TempDir(),
		Catalogs: map[string]config.CatalogConfig{
			"main": {Moniker: "Main"},
		},
	}
	return New(cfg), cfg
}

// writeToneWAV renders seconds of A440 with a click every half second and
// writes it as 16-bit mono PCM: enough signal for every measure to land.
func writeToneWAV(t *testing.T, path string, seconds int) {
	t.Helper()
	rate := 22050
	n := seconds * rate
	samples := make([]int16, n)
	for i := range samples {
		v := 0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(rate))
		if pos := i % (rate / 2); pos < 64 {
			if pos%2 == 0 {
				v += 0.4
			} else {
				v -= 0.4
			}
		}
		samples[i] = int16(v * 32767)
	}

	var b bytes.Buffer
	b.WriteString("RIFF")
	_ = binary.Write(&b, binary.LittleEndian, uint32(36+2*n))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	_ = binary.Write(&b, binary.LittleEndian, uint32(16))
	_ = binary.Write(&b, binary.LittleEndian, uint16(1))
	_ = binary.Write(&b, binary.LittleEndian, uint16(1))
	_ = binary.Write(&b, binary.LittleEndian, uint32(rate))
	_ = binary.Write(&b, binary.LittleEndian, uint32(rate*2))
	_ = binary.Write(&b, binary.LittleEndian, uint16(2))
	_ = binary.Write(&b, binary.LittleEndian, uint16(16))
	b.WriteString("data")
	_ = binary.Write(&b, binary.LittleEndian, uint32(2*n))
	for _, s := range samples {
		_ = binary.Write(&b, binary.LittleEndian, s)
	}

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, b.Bytes(), 0o644))
}

func analysisTask(args task.Args) *task.Task {
	var m task.Maker
	tk := m.Make(config.AppLibrosa, config.ActionBasic, args)
	return &tk
}

func TestAnalyzeHappyPath(t *testing.T) {
	a, cfg := testAnalyzer(t)
	dataPath := filepath.Join(cfg.Root, "scratch", "Acme Sounds - Pack Vol 1")
	writeToneWAV(t, filepath.Join(dataPath, "kick.wav"), 3)

	tk := analysisTask(task.Args{
		Catalog:   "main",
		AssetID:   7,
		Cname:     "Acme Sounds - Pack Vol 1",
		DataPath:  dataPath,
		FilePaths: []task.FilePath{{ID: 11, Path: "kick.wav"}},
	})
	require.NoError(t, a.RunTask(context.Background(), tk))

	var results []task.FileAnalysis
	require.NoError(t, tk.ResultPayload(task.PayloadAnalysis, &results))
	require.Len(t, results, 1)

	fa := results[0]
	require.Equal(t, int64(11), fa.FileID)
	require.Equal(t, "3.000", fa.Duration)

	tempo, err := strconv.ParseFloat(fa.Tempo, 64)
	require.NoError(t, err)
	require.InDelta(t, 120.0, tempo, 6.0)

	require.Equal(t,
		"analysis/features/main/acme_sounds/Acme Sounds - Pack Vol 1/11-librosa-beat_frames.npy",
		fa.BeatsPath)
	require.Len(t, fa.Chroma, 12)
	require.Greater(t, fa.Chroma[9], 0.5)

	artifact := filepath.Join(cfg.DataRoot(), filepath.FromSlash(fa.BeatsPath))
	raw, err := os.ReadFile(artifact)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(raw, npyMagic))
}

func TestAnalyzeSkipsNonWavFiles(t *testing.T) {
	a, cfg := testAnalyzer(t)
	dataPath := filepath.Join(cfg.Root, "scratch", "Acme - Pack")
	writeToneWAV(t, filepath.Join(dataPath, "loop.wav"), 2)
	require.NoError(t, os.WriteFile(filepath.Join(dataPath, "notes.txt"), []byte("not audio"), 0o644))

	tk := analysisTask(task.Args{
		Catalog:  "main",
		AssetID:  3,
		Cname:    "Acme - Pack",
		DataPath: dataPath,
		FilePaths: []task.FilePath{
			{ID: 1, Path: "loop.wav"},
			{ID: 2, Path: "notes.txt"},
		},
	})
	require.NoError(t, a.RunTask(context.Background(), tk))

	var results []task.FileAnalysis
	require.NoError(t, tk.ResultPayload(task.PayloadAnalysis, &results))
	require.Len(t, results, 1)
	require.Equal(t, int64(1), results[0].FileID)
}

func TestAnalyzeRejectsAssetWithoutWavFiles(t *testing.T) {
	a, cfg := testAnalyzer(t)
	dataPath := filepath.Join(cfg.Root, "scratch", "Acme - Pack")
	require.NoError(t, os.MkdirAll(dataPath, 0o755))

	tk := analysisTask(task.Args{
		Catalog:   "main",
		AssetID:   3,
		Cname:     "Acme - Pack",
		DataPath:  dataPath,
		FilePaths: []task.FilePath{{ID: 2, Path: "notes.txt"}},
	})
	err := a.RunTask(context.Background(), tk)
	require.Error(t, err)
	require.Equal(t, task.KindValidation, task.KindOf(err))
}

func TestAnalyzeMissingFileIsValidation(t *testing.T) {
	a, cfg := testAnalyzer(t)
	dataPath := filepath.Join(cfg.Root, "scratch", "Acme - Pack")
	require.NoError(t, os.MkdirAll(dataPath, 0o755))

	tk := analysisTask(task.Args{
		Catalog:   "main",
		AssetID:   4,
		Cname:     "Acme - Pack",
		DataPath:  dataPath,
		FilePaths: []task.FilePath{{ID: 1, Path: "gone.wav"}},
	})
	err := a.RunTask(context.Background(), tk)
	require.Error(t, err)
	require.Equal(t, task.KindValidation, task.KindOf(err))
}

func TestAnalyzeMalformedWavIsValidation(t *testing.T) {
	a, cfg := testAnalyzer(t)
	dataPath := filepath.Join(cfg.Root, "scratch", "Acme - Pack")
	require.NoError(t, os.MkdirAll(dataPath, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataPath, "bad.wav"), []byte("RIFFxxxxJUNK"), 0o644))

	tk := analysisTask(task.Args{
		Catalog:   "main",
		AssetID:   5,
		Cname:     "Acme - Pack",
		DataPath:  dataPath,
		FilePaths: []task.FilePath{{ID: 1, Path: "bad.wav"}},
	})
	err := a.RunTask(context.Background(), tk)
	require.Error(t, err)
	require.Equal(t, task.KindValidation, task.KindOf(err))
}

func TestAnalyzeForeignTasksPassThrough(t *testing.T) {
	a, _ := testAnalyzer(t)
	var m task.Maker
	tk := m.Make(config.AppDiscogs, config.ActionSearch, task.Args{Catalog: "main"})

	require.NoError(t, a.RunTask(context.Background(), &tk))
	require.Empty(t, tk.Results)
	require.Nil(t, tk.Result)
}

func TestAnalyzeRejectsUnknownAction(t *testing.T) {
	a, _ := testAnalyzer(t)
	var m task.Maker
	tk := m.Make(config.AppLibrosa, "advanced", task.Args{Catalog: "main", DataPath: "/tmp/x"})

	err := a.RunTask(context.Background(), &tk)
	require.Error(t, err)
	require.Equal(t, task.KindValidation, task.KindOf(err))
}

func TestAnalyzeRequiresDataPath(t *testing.T) {
	a, _ := testAnalyzer(t)
	tk := analysisTask(task.Args{
		Catalog:   "main",
		AssetID:   6,
		FilePaths: []task.FilePath{{ID: 1, Path: "kick.wav"}},
	})
	err := a.RunTask(context.Background(), tk)
	require.Error(t, err)
	require.Equal(t, task.KindValidation, task.KindOf(err))
}

func TestNpyEncoding(t *testing.T) {
	for _, frames := range [][]int{{3, 1, 4, 1, 5}, {}, {1024}} {
		raw := encodeNpyInt64(frames)
		require.True(t, bytes.HasPrefix(raw, npyMagic))

		headerLen := int(binary.LittleEndian.Uint16(raw[8:10]))
		require.Zero(t, (10+headerLen)%64)

		header := string(raw[10 : 10+headerLen])
		require.Contains(t, header, "'descr': '<i8'")
		require.Contains(t, header, "'fortran_order': False")
		require.Contains(t, header, "("+strconv.Itoa(len(frames))+",)")
		require.Equal(t, byte('\n'), header[len(header)-1])

		data := raw[10+headerLen:]
		require.Len(t, data, 8*len(frames))
		for i, want := range frames {
			got := int64(binary.LittleEndian.Uint64(data[8*i:]))
			require.Equal(t, int64(want), got)
		}
	}
}
