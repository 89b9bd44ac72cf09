// SPDX-License-Identifier: MIT

package normalize

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jdswan/sonicat/internal/catalog"
	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/task"
)

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	root := t.TempDir()
	cfg := &config.AppConfig{
		Root: root,
		Catalogs: map[string]config.CatalogConfig{
			"main": {
				Moniker: "Main",
				Path:    config.CatalogPaths{Managed: filepath.Join(root, "managed")},
			},
		},
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "managed"), 0o755))
	return cfg
}

func placeArchive(t *testing.T, cfg *config.AppConfig, parts ...string) string {
	t.Helper()
	path := filepath.Join(append([]string{cfg.Catalogs["main"].Path.Managed}, parts...)...)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("rar"), 0o644))
	return path
}

func TestPlanSortsLooseArchives(t *testing.T) {
	cfg := testConfig(t)
	loose := placeArchive(t, cfg, "Acme Sounds - Pack Vol 1.rar")
	placeArchive(t, cfg, "notcanonical.rar")

	n := New(cfg)
	report, err := n.Plan(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Moves, 1)
	require.Equal(t, loose, report.Moves[0].From)
	require.Equal(t,
		filepath.Join(cfg.Catalogs["main"].Path.Managed, "acme_sounds", "Acme Sounds - Pack Vol 1.rar"),
		report.Moves[0].To)

	require.NoError(t, n.Apply(context.Background(), report))
	require.NoFileExists(t, loose)
	require.FileExists(t, report.Moves[0].To)
}

func TestPlanHomogenizesMajoritySpelling(t *testing.T) {
	cfg := testConfig(t)
	placeArchive(t, cfg, "acme_sounds", "Acme Sounds - Pack Vol 1.rar")
	placeArchive(t, cfg, "acme_sounds", "Acme Sounds - Pack Vol 2.rar")
	minority := placeArchive(t, cfg, "acme_sounds", "ACME Sounds - Pack Vol 3 (2019).rar")

	n := New(cfg)
	report, err := n.Plan(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Respells, 1)
	require.Equal(t, "Acme Sounds", report.Respells[0].Majority)
	require.Len(t, report.Renames, 1)
	require.Equal(t, minority, report.Renames[0].From)
	require.Equal(t, "Acme Sounds - Pack Vol 3 (2019)", report.Renames[0].NewCname)
}

func TestPlanTieBreaksAlphabetically(t *testing.T) {
	cfg := testConfig(t)
	placeArchive(t, cfg, "acme_sounds", "ACME Sounds - Pack Vol 1.rar")
	placeArchive(t, cfg, "acme_sounds", "Acme Sounds - Pack Vol 2.rar")

	n := New(cfg)
	report, err := n.Plan(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Respells, 1)
	require.Equal(t, "ACME Sounds", report.Respells[0].Majority)
}

func TestApplyUpdatesCatalogRows(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	store, err := catalog.Open(cfg.CatalogDBPath("main"))
	require.NoError(t, err)
	for _, cname := range []string{"Acme Sounds - Pack Vol 1", "Acme Sounds - Pack Vol 2", "ACME Sounds - Pack Vol 3"} {
		_, err := store.IntakeAsset(ctx, task.AssetData{Label: "Acme Sounds", Cname: cname, Managed: 1},
			task.Survey{"kick.wav": {Basename: "kick.wav", Size: 17, Filetype: "wav"}})
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	placeArchive(t, cfg, "acme_sounds", "Acme Sounds - Pack Vol 1.rar")
	placeArchive(t, cfg, "acme_sounds", "Acme Sounds - Pack Vol 2.rar")
	placeArchive(t, cfg, "acme_sounds", "ACME Sounds - Pack Vol 3.rar")

	n := New(cfg)
	report, err := n.Plan(ctx)
	require.NoError(t, err)
	require.NoError(t, n.Apply(ctx, report))

	store, err = catalog.Open(cfg.CatalogDBPath("main"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	exists, err := store.AssetExists(ctx, "Acme Sounds - Pack Vol 3")
	require.NoError(t, err)
	require.True(t, exists, "catalog row renamed with the archive")
	gone, err := store.AssetExists(ctx, "ACME Sounds - Pack Vol 3")
	require.NoError(t, err)
	require.False(t, gone)
	require.FileExists(t, filepath.Join(cfg.Catalogs["main"].Path.Managed, "acme_sounds", "Acme Sounds - Pack Vol 3.rar"))
}

func TestEmptyPlanDoesNothing(t *testing.T) {
	cfg := testConfig(t)
	placeArchive(t, cfg, "acme_sounds", "Acme Sounds - Pack Vol 1.rar")

	n := New(cfg)
	report, err := n.Plan(context.Background())
	require.NoError(t, err)
	require.True(t, report.Empty())
}
