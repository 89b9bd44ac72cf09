// SPDX-License-Identifier: MIT

package appdata

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jdswan/sonicat/internal/catalog"
	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/task"
)

// Funnel is the app_data worker: the single write path from completed
// tasks into the catalog and the derived-data stores. Each commit exports
// the touched store's replica so the scheduler's next enumeration sees it.
type Funnel struct {
	cfg *config.AppConfig

	analysis *AnalysisStore
	cue      *CueStore
	tokens   *TokensStore
	discogs  *DiscogsStore
	lastfm   *LastfmStore
	pages    *PagesStore

	mu       sync.Mutex
	catalogs map[string]*catalog.Store // live handles, opened on first intake

	logger zerolog.Logger
}

// NewFunnel opens the live derived-data stores for every configured app
// that has one. Catalog write handles open lazily per intake.
func NewFunnel(cfg *config.AppConfig) (*Funnel, error) {
	f := &Funnel{
		cfg:      cfg,
		catalogs: make(map[string]*catalog.Store),
		logger:   log.WithComponent(config.AppAppData),
	}
	var err error
	if f.analysis, err = OpenAnalysis(cfg.AppDBPath(config.AppLibrosa)); err != nil {
		return nil, err
	}
	if f.cue, err = OpenCue(cfg.AppDBPath(config.AppCueParser)); err != nil {
		f.Close()
		return nil, err
	}
	if f.tokens, err = OpenTokens(cfg.AppDBPath(config.AppPathParser)); err != nil {
		f.Close()
		return nil, err
	}
	if f.discogs, err = OpenDiscogs(cfg.AppDBPath(config.AppDiscogs)); err != nil {
		f.Close()
		return nil, err
	}
	if f.lastfm, err = OpenLastfm(cfg.AppDBPath(config.AppLastfm)); err != nil {
		f.Close()
		return nil, err
	}
	if f.pages, err = OpenPages(cfg.AppDBPath(config.AppRutracker)); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// Name implements worker.Worker.
func (f *Funnel) Name() string {
	return config.AppAppData
}

// Close releases every open store handle.
func (f *Funnel) Close() {
	if f.analysis != nil {
		_ = f.analysis.Close()
	}
	if f.cue != nil {
		_ = f.cue.Close()
	}
	if f.tokens != nil {
		_ = f.tokens.Close()
	}
	if f.discogs != nil {
		_ = f.discogs.Close()
	}
	if f.lastfm != nil {
		_ = f.lastfm.Close()
	}
	if f.pages != nil {
		_ = f.pages.Close()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.catalogs {
		_ = c.Close()
	}
}

// Stores lists the funnel's derived-data stores for the operator surface.
func (f *Funnel) Stores() []Store {
	return []Store{f.analysis, f.cue, f.tokens, f.discogs, f.lastfm, f.pages}
}

// RunTask dispatches a completed task's results to the matching store.
// Failed metadata tasks are written to the failure ledger when the search
// itself was exhausted; external failures leave no trace and the work is
// reissued at the next enumeration.
func (f *Funnel) RunTask(ctx context.Context, t *task.Task) error {
	switch t.AppName {
	case config.AppCommandBridge:
		return f.runCommand(ctx, t)
	case config.AppInventory:
		return f.recordIntake(ctx, t)
	case config.AppLibrosa:
		return f.recordAnalysis(ctx, t)
	case config.AppCueParser:
		return f.recordCue(ctx, t)
	case config.AppPathParser:
		return f.recordParse(ctx, t)
	case config.AppDiscogs:
		return f.recordMetadata(ctx, t, func() (bool, error) {
			var m task.AlbumMatch
			if err := t.ResultPayload(task.PayloadMetadata, &m); err != nil {
				return false, err
			}
			return f.discogs.RecordMatch(ctx, t.Args.Catalog, t.Args.AssetID, m)
		}, f.discogs)
	case config.AppLastfm:
		return f.recordMetadata(ctx, t, func() (bool, error) {
			var m task.AlbumMatch
			if err := t.ResultPayload(task.PayloadMetadata, &m); err != nil {
				return false, err
			}
			return f.lastfm.RecordMatch(ctx, t.Args.Catalog, t.Args.AssetID, m)
		}, f.lastfm)
	case config.AppRutracker:
		return f.recordMetadata(ctx, t, func() (bool, error) {
			var pages []task.PageResult
			if err := t.ResultPayload(task.PayloadPages, &pages); err != nil {
				return false, err
			}
			return f.pages.RecordPages(ctx, t.Args.Catalog, t.Args.AssetID, pages)
		}, f.pages)
	default:
		return task.Validation("no write path for app %q", t.AppName)
	}
}

// recordIntake commits an inventory survey into the live catalog.
func (f *Funnel) recordIntake(ctx context.Context, t *task.Task) error {
	if !t.Succeeded() {
		return nil // nothing surveyed, nothing to write
	}
	var ad task.AssetData
	if err := t.ResultPayload(task.PayloadAssetData, &ad); err != nil {
		return err
	}
	var survey task.Survey
	if err := t.ResultPayload(task.PayloadFileData, &survey); err != nil {
		return err
	}
	store, err := f.catalogStore(t.Args.Catalog)
	if err != nil {
		return err
	}
	assetID, err := store.IntakeAsset(ctx, ad, survey)
	if err != nil {
		return err
	}
	f.exportReplica(store)
	f.logger.Info().
		Str(log.FieldEvent, "funnel.intake_committed").
		Str(log.FieldCatalog, t.Args.Catalog).
		Str(log.FieldCname, ad.Cname).
		Int64(log.FieldAssetID, assetID).
		Msg("survey committed")
	return nil
}

func (f *Funnel) recordAnalysis(ctx context.Context, t *task.Task) error {
	if !t.Succeeded() {
		return nil // analysis failures are quarantined by the scheduler
	}
	var files []task.FileAnalysis
	if err := t.ResultPayload(task.PayloadAnalysis, &files); err != nil {
		return err
	}
	fresh, err := f.analysis.RecordAnalysis(ctx, t.Args.Catalog, t.Args.AssetID, files)
	if err != nil {
		return err
	}
	if fresh {
		f.exportReplica(f.analysis)
	}
	return nil
}

func (f *Funnel) recordCue(ctx context.Context, t *task.Task) error {
	if !t.Succeeded() {
		return nil
	}
	var sheets []task.CueSheet
	if err := t.ResultPayload(task.PayloadCue, &sheets); err != nil {
		return err
	}
	fresh, err := f.cue.RecordSheets(ctx, t.Args.Catalog, t.Args.AssetID, sheets)
	if err != nil {
		return err
	}
	if fresh {
		f.exportReplica(f.cue)
	}
	return nil
}

func (f *Funnel) recordParse(ctx context.Context, t *task.Task) error {
	if !t.Succeeded() {
		return nil
	}
	var parses []task.FileParse
	if err := t.ResultPayload(task.PayloadParse, &parses); err != nil {
		return err
	}
	fresh, err := f.tokens.RecordParse(ctx, t.Args.Catalog, t.Args.AssetID, parses)
	if err != nil {
		return err
	}
	if fresh {
		f.exportReplica(f.tokens)
	}
	return nil
}

// failedSearcher is the slice of a store the metadata path needs.
type failedSearcher interface {
	Store
	RecordFailedSearch(ctx context.Context, catalog string, assetID int64) error
}

func (f *Funnel) recordMetadata(ctx context.Context, t *task.Task, commit func() (bool, error), store failedSearcher) error {
	if t.Succeeded() {
		fresh, err := commit()
		if err != nil {
			return err
		}
		if fresh {
			f.exportReplica(store)
		}
		return nil
	}
	// Exhausted searches block reissue until purged; external failures
	// (network, throttle) leave the asset eligible.
	if t.Result != nil && t.Result.Kind == task.KindValidation {
		if err := store.RecordFailedSearch(ctx, t.Args.Catalog, t.Args.AssetID); err != nil {
			return err
		}
		f.exportReplica(store)
	}
	return nil
}

// runCommand handles control-plane tasks forwarded by the scheduler. The
// failure ledgers live in this process's stores, so purge requests end here.
func (f *Funnel) runCommand(ctx context.Context, t *task.Task) error {
	switch t.Action {
	case config.CmdPurgeFailed:
		return f.purgeFailed(ctx, t)
	case config.CmdExportReplicas:
		for _, s := range f.Stores() {
			f.exportReplica(s)
		}
		return nil
	default:
		return task.Validation("unknown command %q", t.Action)
	}
}

func (f *Funnel) purgeFailed(ctx context.Context, t *task.Task) error {
	store := f.ledgerOwner(t.Args.App)
	if store == nil {
		return task.Validation("no failure ledger for app %q", t.Args.App)
	}
	n, err := store.PurgeFailed(ctx, t.Args.Catalog, t.Args.AssetIDs)
	if err != nil {
		return err
	}
	if n > 0 {
		f.exportReplica(store)
	}
	f.logger.Info().
		Str(log.FieldEvent, "funnel.failed_purged").
		Str(log.FieldApp, t.Args.App).
		Str(log.FieldCatalog, t.Args.Catalog).
		Int64("rows", n).
		Msg("failure ledger purged")
	return nil
}

// purger is the slice of a store the purge command needs.
type purger interface {
	Store
	PurgeFailed(ctx context.Context, catalog string, assetIDs []int64) (int64, error)
}

func (f *Funnel) ledgerOwner(app string) purger {
	switch app {
	case config.AppDiscogs:
		return f.discogs
	case config.AppLastfm:
		return f.lastfm
	case config.AppRutracker:
		return f.pages
	default:
		return nil
	}
}

func (f *Funnel) catalogStore(name string) (*catalog.Store, error) {
	if name == "" {
		return nil, task.Validation("intake task names no catalog")
	}
	if _, ok := f.cfg.Catalogs[name]; !ok {
		return nil, task.Validation("unknown catalog %q", name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if store, ok := f.catalogs[name]; ok {
		return store, nil
	}
	store, err := catalog.Open(f.cfg.CatalogDBPath(name))
	if err != nil {
		return nil, fmt.Errorf("funnel: %w", err)
	}
	f.catalogs[name] = store
	return store, nil
}

// exportReplica refreshes a store's replica after a commit. Export errors
// are logged, not fatal: the committed rows are durable and a later export
// or the export_replicas command heals the replica.
func (f *Funnel) exportReplica(s interface{ ExportReplica() error }) {
	if err := s.ExportReplica(); err != nil {
		f.logger.Warn().Err(err).
			Str(log.FieldEvent, "funnel.replica_export_failed").
			Msg("replica export failed")
	}
}
