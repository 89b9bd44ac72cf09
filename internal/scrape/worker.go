// SPDX-License-Identifier: MIT

package scrape

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/names"
	"github.com/jdswan/sonicat/internal/task"
)

// Scraper is the rutracker_scraper worker.
type Scraper struct {
	tracker *Rutracker
	logger  zerolog.Logger
}

// NewScraper wraps a tracker client for the task fabric.
func NewScraper(tracker *Rutracker) *Scraper {
	return &Scraper{tracker: tracker, logger: log.WithComponent(config.AppRutracker)}
}

// Name implements worker.Worker.
func (w *Scraper) Name() string {
	return config.AppRutracker
}

// RunTask searches the tracker for the task's cname, once verbatim and once
// with a " flac" suffix, and attaches the result rows whose names cover the
// asset's title tokens. No matching row across both queries is a validation
// failure, which sends the asset to the scraper's failed-search ledger;
// transport errors are external and leave the asset eligible for a later
// cycle. Tasks from other apps pass through untouched.
func (w *Scraper) RunTask(ctx context.Context, t *task.Task) error {
	if t.AppName != config.AppRutracker {
		return nil
	}
	if t.Action != config.ActionSearch {
		return task.Validation("%s: unknown action %q", config.AppRutracker, t.Action)
	}
	if t.Args.Cname == "" {
		return task.Validation("%s: task names no cname", config.AppRutracker)
	}

	_, title, _ := names.Divide(t.Args.Cname)
	if names.HasMediaLabel(title) {
		title = names.TrimMediaLabels(title)
	}
	tokens := strings.Fields(strings.ToLower(title))

	base := QueryText(t.Args.Cname)
	var hits []task.PageResult
	seen := make(map[string]bool)
	for _, query := range []string{base, base + " flac"} {
		if err := ctx.Err(); err != nil {
			return task.External("%s: %v", config.AppRutracker, err)
		}
		rows, err := w.tracker.Search(ctx, query)
		if err != nil {
			return task.External("%s: %v", config.AppRutracker, err)
		}
		w.logger.Debug().
			Str(log.FieldTaskID, t.ID).
			Str("query", query).
			Int("rows", len(rows)).
			Msg("tracker queried")
		for _, row := range rows {
			if seen[row.SiteID] || !nameCovers(row.Name, tokens) {
				continue
			}
			seen[row.SiteID] = true
			hits = append(hits, row)
		}
	}

	if len(hits) == 0 {
		return task.Validation("%s: no tracker results match asset %d", config.AppRutracker, t.Args.AssetID)
	}
	if err := t.AttachResult(task.PayloadPages, hits); err != nil {
		return err
	}
	w.logger.Info().
		Str(log.FieldEvent, "scrape.results_matched").
		Str(log.FieldTaskID, t.ID).
		Int64(log.FieldAssetID, t.Args.AssetID).
		Int("hits", len(hits)).
		Msg("tracker results matched")
	return nil
}

// nameCovers reports whether every title token occurs in the row name,
// case-insensitively.
func nameCovers(name string, tokens []string) bool {
	name = strings.ToLower(name)
	for _, tok := range tokens {
		if !strings.Contains(name, tok) {
			return false
		}
	}
	return true
}
