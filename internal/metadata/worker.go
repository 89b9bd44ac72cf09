// SPDX-License-Identifier: MIT

package metadata

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/names"
	"github.com/jdswan/sonicat/internal/task"
)

// Candidate is one search hit before its tracklist is known. Summary
// fields carried here survive into the accepted match.
type Candidate struct {
	SourceID string
	Title    string
	Artist   string
	Year     string
	Country  string
	CoverURL string
	Tags     []string
	Formats  []string
}

// Provider is one metadata source a Searcher can drive.
type Provider interface {
	Name() string
	// Search returns up to limit candidates for one query variant.
	Search(ctx context.Context, q Query, limit int) ([]Candidate, error)
	// Album resolves a candidate into a full match with its tracklist.
	Album(ctx context.Context, c Candidate) (task.AlbumMatch, error)
}

// Searcher is a metadata worker bound to one provider.
type Searcher struct {
	provider Provider
	logger   zerolog.Logger
}

// NewSearcher wraps a provider for the task fabric.
func NewSearcher(p Provider) *Searcher {
	return &Searcher{provider: p, logger: log.WithComponent(p.Name())}
}

// Name implements worker.Worker.
func (w *Searcher) Name() string {
	return w.provider.Name()
}

// RunTask walks the search ladder for the task's asset and attaches the
// first release whose tracklist corroborates the measured durations.
// Exhausting the ladder is a validation failure, which sends the asset to
// the provider's failed-search ledger; transport errors are external and
// leave the asset eligible for a later cycle. Tasks from other apps pass
// through untouched.
func (w *Searcher) RunTask(ctx context.Context, t *task.Task) error {
	name := w.provider.Name()
	if t.AppName != name {
		return nil
	}
	if t.Action != config.ActionSearch {
		return task.Validation("%s: unknown action %q", name, t.Action)
	}
	if t.Args.Cname == "" {
		return task.Validation("%s: task names no cname", name)
	}
	if len(t.Args.Tracks) == 0 {
		return task.Validation("%s: no measured tracks for asset %d", name, t.Args.AssetID)
	}

	measured := make([]float64, len(t.Args.Tracks))
	for i, tr := range t.Args.Tracks {
		measured[i] = tr.Duration
	}

	for _, q := range SearchPlan(t.Args.Cname) {
		if err := ctx.Err(); err != nil {
			return task.External("%s: %v", name, err)
		}
		candidates, err := w.provider.Search(ctx, q, resultCap)
		if err != nil {
			return task.External("%s: search: %v", name, err)
		}
		w.logger.Debug().
			Str(log.FieldTaskID, t.ID).
			Str("title", q.Title).
			Int("results", len(candidates)).
			Msg("variant searched")
		for _, c := range candidates {
			match, err := w.provider.Album(ctx, c)
			if err != nil {
				if ctx.Err() != nil {
					return task.External("%s: %v", name, ctx.Err())
				}
				w.logger.Debug().Err(err).
					Str(log.FieldTaskID, t.ID).
					Str("source_id", c.SourceID).
					Msg("candidate dropped")
				continue
			}
			durations := make([]int, len(match.Tracks))
			for i, tr := range match.Tracks {
				durations[i] = tr.Duration
			}
			if !ValidateDurations(measured, durations) {
				continue
			}
			// Lengths are equal past validation; tracklist order is the
			// catalog file order.
			for i := range match.Tracks {
				match.Tracks[i].FileID = t.Args.Tracks[i].FileID
			}
			if match.Year == "" {
				_, _, note := names.Divide(t.Args.Cname)
				match.Year = names.Year(note)
			}
			if err := t.AttachResult(task.PayloadMetadata, match); err != nil {
				return err
			}
			w.logger.Info().
				Str(log.FieldEvent, "metadata.match_accepted").
				Str(log.FieldTaskID, t.ID).
				Int64(log.FieldAssetID, t.Args.AssetID).
				Str("source_id", match.SourceID).
				Str("title", match.Title).
				Msg("release corroborated")
			return nil
		}
	}
	return task.Validation("%s: no release corroborates asset %d", name, t.Args.AssetID)
}
