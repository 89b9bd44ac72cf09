// SPDX-License-Identifier: MIT

package metadata

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/task"
)

type fakeProvider struct {
	name       string
	searched   []Query
	lastLimit  int
	searchErr  error
	candidates func(q Query) []Candidate
	album      func(c Candidate) (task.AlbumMatch, error)
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Search(ctx context.Context, q Query, limit int) ([]Candidate, error) {
	f.searched = append(f.searched, q)
	f.lastLimit = limit
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.candidates == nil {
		return nil, nil
	}
	return f.candidates(q), nil
}

func (f *fakeProvider) Album(ctx context.Context, c Candidate) (task.AlbumMatch, error) {
	if f.album == nil {
		return task.AlbumMatch{}, errors.New("no album fixture")
	}
	return f.album(c)
}

func tracksOf(durations ...int) []task.TrackMatch {
	tracks := make([]task.TrackMatch, len(durations))
	for i, d := range durations {
		tracks[i] = task.TrackMatch{Title: fmt.Sprintf("Track %d", i+1), Duration: d}
	}
	return tracks
}

func searchTask(app string) *task.Task {
	var maker task.Maker
	tk := maker.Make(app, config.ActionSearch, task.Args{
		Catalog: "main",
		AssetID: 42,
		Cname:   "Acme Records - Neon Nights (2004)",
		Tracks: []task.TrackDuration{
			{FileID: 7, Duration: 212.0},
			{FileID: 8, Duration: 198.5},
			{FileID: 9, Duration: 240.1},
		},
	})
	return &tk
}

func TestRunTaskAcceptsFirstCorroboratedRelease(t *testing.T) {
	fake := &fakeProvider{
		name: config.AppDiscogs,
		candidates: func(q Query) []Candidate {
			return []Candidate{
				{SourceID: "41", Title: "Acme Records - Wrong Album"},
				{SourceID: "42", Title: "Acme Records - Neon Nights"},
			}
		},
		album: func(c Candidate) (task.AlbumMatch, error) {
			if c.SourceID == "41" {
				return task.AlbumMatch{SourceID: "41", Tracks: tracksOf(300, 10, 20)}, nil
			}
			return task.AlbumMatch{
				SourceID: "42",
				Title:    c.Title,
				Tracks:   tracksOf(213, 199, 240),
			}, nil
		},
	}

	w := NewSearcher(fake)
	tk := searchTask(config.AppDiscogs)
	require.NoError(t, w.RunTask(context.Background(), tk))

	// The first variant produced a match; the ladder stops there.
	require.Equal(t, []Query{{Title: "Neon Nights", Artist: "Acme Records"}}, fake.searched)
	require.Equal(t, resultCap, fake.lastLimit)

	var match task.AlbumMatch
	require.NoError(t, tk.ResultPayload(task.PayloadMetadata, &match))
	require.Equal(t, "42", match.SourceID)
	require.Equal(t, "2004", match.Year)
	require.Equal(t, int64(7), match.Tracks[0].FileID)
	require.Equal(t, int64(8), match.Tracks[1].FileID)
	require.Equal(t, int64(9), match.Tracks[2].FileID)
}

func TestRunTaskExhaustionIsValidation(t *testing.T) {
	fake := &fakeProvider{
		name: config.AppDiscogs,
		candidates: func(q Query) []Candidate {
			return []Candidate{{SourceID: "42"}}
		},
		album: func(c Candidate) (task.AlbumMatch, error) {
			return task.AlbumMatch{SourceID: "42", Tracks: tracksOf(213, 199, 240)}, nil
		},
	}

	w := NewSearcher(fake)
	var maker task.Maker
	tk := maker.Make(config.AppDiscogs, config.ActionSearch, task.Args{
		Catalog: "main",
		AssetID: 42,
		Cname:   "Acme Records - Neon Nights (2004)",
		Tracks: []task.TrackDuration{
			{FileID: 7, Duration: 212.0},
			{FileID: 8, Duration: 198.5},
			{FileID: 9, Duration: 235.0}, // track 3 misses by 3 s
		},
	})

	err := w.RunTask(context.Background(), &tk)
	require.Error(t, err)
	require.Equal(t, task.KindValidation, task.KindOf(err))
	require.Len(t, fake.searched, 5) // the whole ladder ran
	require.Empty(t, tk.Results)
}

func TestRunTaskTransportErrorIsExternal(t *testing.T) {
	fake := &fakeProvider{
		name:      config.AppDiscogs,
		searchErr: errors.New("dial tcp: i/o timeout"),
	}

	w := NewSearcher(fake)
	tk := searchTask(config.AppDiscogs)
	err := w.RunTask(context.Background(), tk)
	require.Error(t, err)
	require.Equal(t, task.KindExternal, task.KindOf(err))
	require.Len(t, fake.searched, 1) // aborted on the first variant
}

func TestRunTaskSkipsFailedCandidates(t *testing.T) {
	fake := &fakeProvider{
		name: config.AppDiscogs,
		candidates: func(q Query) []Candidate {
			return []Candidate{{SourceID: "41"}, {SourceID: "42"}}
		},
		album: func(c Candidate) (task.AlbumMatch, error) {
			if c.SourceID == "41" {
				return task.AlbumMatch{}, errors.New("release gone")
			}
			return task.AlbumMatch{SourceID: "42", Tracks: tracksOf(213, 199, 240)}, nil
		},
	}

	w := NewSearcher(fake)
	tk := searchTask(config.AppDiscogs)
	require.NoError(t, w.RunTask(context.Background(), tk))

	var match task.AlbumMatch
	require.NoError(t, tk.ResultPayload(task.PayloadMetadata, &match))
	require.Equal(t, "42", match.SourceID)
}

func TestRunTaskForeignAppPassesThrough(t *testing.T) {
	w := NewSearcher(&fakeProvider{name: config.AppDiscogs})
	var maker task.Maker
	tk := maker.Make(config.AppLastfm, config.ActionSearch, task.Args{Catalog: "main"})

	require.NoError(t, w.RunTask(context.Background(), &tk))
	require.Empty(t, tk.Results)
	require.Nil(t, tk.Result)
}

func TestRunTaskRejectsUnknownAction(t *testing.T) {
	w := NewSearcher(&fakeProvider{name: config.AppDiscogs})
	var maker task.Maker
	tk := maker.Make(config.AppDiscogs, "scrape", task.Args{Catalog: "main"})

	err := w.RunTask(context.Background(), &tk)
	require.Error(t, err)
	require.Equal(t, task.KindValidation, task.KindOf(err))
}

func TestRunTaskRequiresMeasuredTracks(t *testing.T) {
	w := NewSearcher(&fakeProvider{name: config.AppDiscogs})
	var maker task.Maker
	tk := maker.Make(config.AppDiscogs, config.ActionSearch, task.Args{
		Catalog: "main",
		AssetID: 42,
		Cname:   "Acme Records - Neon Nights (2004)",
	})

	err := w.RunTask(context.Background(), &tk)
	require.Error(t, err)
	require.Equal(t, task.KindValidation, task.KindOf(err))
}

func TestRunTaskHonorsCancellation(t *testing.T) {
	fake := &fakeProvider{name: config.AppDiscogs}
	w := NewSearcher(fake)
	tk := searchTask(config.AppDiscogs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.RunTask(ctx, tk)
	require.Error(t, err)
	require.Equal(t, task.KindExternal, task.KindOf(err))
	require.Empty(t, fake.searched)
}
