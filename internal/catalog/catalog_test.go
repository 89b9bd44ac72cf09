// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/task"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "Main.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestIntakeAssetRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	assetID, err := store.IntakeAsset(ctx,
		task.AssetData{Label: "Acme Sounds", Cname: "Acme Sounds - Pack Vol 1", Managed: 1},
		task.Survey{
			"kick.wav":        {Basename: "kick.wav", Size: 17, Filetype: "wav"},
			"loops/snare.wav": {Basename: "snare.wav", Dirname: "loops", Size: 9, Filetype: "wav"},
		})
	require.NoError(t, err)

	asset, err := store.AssetData(ctx, assetID)
	require.NoError(t, err)
	require.Equal(t, "Acme Sounds - Pack Vol 1", asset.Cname)
	require.True(t, asset.Managed)

	label, err := store.LabelName(ctx, asset.LabelID)
	require.NoError(t, err)
	require.Equal(t, "Acme Sounds", label)

	files, err := store.FileDataByAsset(ctx, assetID)
	require.NoError(t, err)
	require.Len(t, files, 2)

	id, err := store.AssetID(ctx, "Acme Sounds - Pack Vol 1")
	require.NoError(t, err)
	require.Equal(t, assetID, id)
}

func TestReplicaSeesCommittedAssets(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	assetID, err := store.IntakeAsset(ctx,
		task.AssetData{Label: "Acme Sounds", Cname: "Acme Sounds - Pack Vol 1", Managed: 1},
		task.Survey{"kick.wav": {Basename: "kick.wav", Size: 17, Filetype: "wav"}})
	require.NoError(t, err)
	require.NoError(t, store.ExportReplica())

	replica, err := OpenReplica(config.ReplicaPath(store.Path()))
	require.NoError(t, err)
	defer func() { _ = replica.Close() }()

	ids, err := replica.AllAssetIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{assetID}, ids)

	// A replica handle must refuse to snapshot itself.
	require.Error(t, replica.ExportReplica())
}

func TestTrackListOrdersDiscsThenIndices(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	assetID, err := store.IntakeAsset(ctx,
		task.AssetData{Label: "Acme Sounds", Cname: "Acme Sounds - Anthology", Managed: 1},
		task.Survey{
			"CD2/01 Opener.flac":  {Basename: "01 Opener.flac", Dirname: "CD2", Filetype: "flac"},
			"CD1/2-Second.flac":   {Basename: "2-Second.flac", Dirname: "CD1", Filetype: "flac"},
			"CD1/10 Closer.flac":  {Basename: "10 Closer.flac", Dirname: "CD1", Filetype: "flac"},
			"CD1/1. First.flac":   {Basename: "1. First.flac", Dirname: "CD1", Filetype: "flac"},
			"CD2/untitled.flac":   {Basename: "untitled.flac", Dirname: "CD2", Filetype: "flac"},
			"booklet/scan01.flac": {Basename: "scan01.flac", Dirname: "booklet", Filetype: "flac"},
		})
	require.NoError(t, err)

	tracks, err := store.TrackList(ctx, assetID, "flac")
	require.NoError(t, err)

	var order []string
	for _, fd := range tracks {
		order = append(order, fd.Dirname+"/"+fd.Basename)
	}
	// Non-disc directories first (disc ordinal 0), then CD1 by numeric
	// leading index, then CD2 with the unindexed file last.
	require.Equal(t, []string{
		"booklet/scan01.flac",
		"CD1/1. First.flac",
		"CD1/2-Second.flac",
		"CD1/10 Closer.flac",
		"CD2/01 Opener.flac",
		"CD2/untitled.flac",
	}, order)
	require.True(t, IsMultidisc(tracks))
}

func TestIsMultidiscSingleDisc(t *testing.T) {
	files := []task.FileData{
		{Basename: "01 a.flac", Dirname: "CD1"},
		{Basename: "02 b.flac", Dirname: "CD1"},
		{Basename: "kick.wav", Dirname: ""},
	}
	require.False(t, IsMultidisc(files))
}

func TestLeadingIndexForms(t *testing.T) {
	cases := []struct {
		basename string
		n        int
		ok       bool
	}{
		{"01 Kick.wav", 1, true},
		{"2-Snare.flac", 2, true},
		{"10.Closer.flac", 10, true},
		{"track.wav", 0, false},
		{"128bpm kick.wav", 0, false}, // digits run into letters
		{"2024 retrospective.wav", 0, false},
	}
	for _, tc := range cases {
		n, ok := leadingIndex(tc.basename)
		require.Equal(t, tc.ok, ok, tc.basename)
		require.Equal(t, tc.n, n, tc.basename)
	}
}
