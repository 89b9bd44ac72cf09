// SPDX-License-Identifier: MIT

package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/jdswan/sonicat/internal/appdata"
	"github.com/jdswan/sonicat/internal/catalog"
	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/metrics"
	"github.com/jdswan/sonicat/internal/names"
	"github.com/jdswan/sonicat/internal/pending"
	"github.com/jdswan/sonicat/internal/task"
)

// rawBytesApps need the asset's archive restored to scratch before they
// can run, so their tasks ride a restore/remove bracket.
var rawBytesApps = map[string]bool{
	config.AppLibrosa:   true,
	config.AppCueParser: true,
}

// audioExtensions are the filetypes handed to the path parser.
var audioExtensions = []string{"wav", "mp3", "flac", "aiff", "ogg"}

// errSkipTask marks an (app, action, asset) triple that cannot be enriched
// yet; the asset stays out of that app's chain and reappears next cycle.
var errSkipTask = errors.New("scheduler: task not ready")

type appAction struct {
	app    string
	action string
}

// MakeTasks enumerates outstanding work and emits at most threshold
// assets' worth of tasks (0 = unbounded). Catalogs defaults to every
// configured one.
func (s *Scheduler) MakeTasks(ctx context.Context, threshold int, catalogs ...string) ([]task.Task, error) {
	if err := s.refreshReplicas(); err != nil {
		return nil, err
	}
	if len(catalogs) == 0 {
		catalogs = s.cfg.CatalogNames()
	}
	var emitted []task.Task
	budget := threshold
	for _, name := range catalogs {
		if threshold > 0 && budget <= 0 {
			break
		}
		out, assets, err := s.makeCatalogTasks(ctx, name, budget)
		if err != nil {
			return emitted, err
		}
		emitted = append(emitted, out...)
		if threshold > 0 {
			budget -= assets
		}
	}
	return emitted, nil
}

// makeCatalogTasks runs the enumeration algorithm for one catalog:
// per-app pending sets from the ledgers, inversion to per-asset work
// lists, then one chain or direct emission per asset. Returns the emitted
// tasks and the number of assets they cover, for threshold accounting.
func (s *Scheduler) makeCatalogTasks(ctx context.Context, catalogName string, budget int) ([]task.Task, int, error) {
	store := s.catalogs[catalogName]
	if store == nil {
		s.logger.Warn().
			Str(log.FieldEvent, "scheduler.no_replica").
			Str(log.FieldCatalog, catalogName).
			Msg("catalog replica missing, skipping")
		return nil, 0, nil
	}
	all, err := store.AllAssetIDs(ctx)
	if err != nil {
		return nil, 0, err
	}

	// Invert (app, action) pending sets to per-asset work lists so one
	// restore serves every queued app of the asset.
	byAsset := map[int64][]appAction{}
	for _, aa := range s.cfg.EnabledActions(catalogName) {
		excluded, err := s.excludedAssets(ctx, aa.App, catalogName)
		if err != nil {
			return nil, 0, err
		}
		for _, action := range aa.Actions {
			for _, id := range all {
				if excluded[id] || s.quarantine[quarKey{app: aa.App, asset: id}] >= quarantineCap {
					continue
				}
				byAsset[id] = append(byAsset[id], appAction{app: aa.App, action: action})
			}
		}
	}

	assetIDs := make([]int64, 0, len(byAsset))
	for id := range byAsset {
		assetIDs = append(assetIDs, id)
	}
	sort.Slice(assetIDs, func(i, j int) bool { return assetIDs[i] < assetIDs[j] })

	var emitted []task.Task
	assets := 0
	for _, id := range assetIDs {
		if budget > 0 && assets >= budget {
			break
		}
		out, err := s.emitAsset(ctx, catalogName, store, id, byAsset[id])
		if err != nil {
			return emitted, assets, err
		}
		if len(out) > 0 {
			assets++
			emitted = append(emitted, out...)
		}
	}
	if len(emitted) > 0 {
		s.logger.Info().
			Str(log.FieldEvent, "scheduler.tasks_made").
			Str(log.FieldCatalog, catalogName).
			Int("assets", assets).
			Int("emitted", len(emitted)).
			Msg("enumeration complete")
	}
	return emitted, assets, nil
}

// excludedAssets merges an app's completion and failure ledgers into one
// negative filter. An asset in both succeeded on a retry; either way it is
// not reissued.
func (s *Scheduler) excludedAssets(ctx context.Context, app, catalogName string) (map[int64]bool, error) {
	ledger := s.ledgers[app]
	if ledger == nil {
		return map[int64]bool{}, nil
	}
	completed, err := ledger.Completed(ctx, catalogName)
	if err != nil {
		return nil, err
	}
	failed, err := ledger.Failed(ctx, catalogName)
	if err != nil {
		return nil, err
	}
	metrics.SetLedgerRows(app, catalogName, "completed", len(completed))
	metrics.SetLedgerRows(app, catalogName, "failed", len(failed))
	out := make(map[int64]bool, len(completed)+len(failed))
	for _, id := range completed {
		out[id] = true
	}
	for _, id := range failed {
		out[id] = true
	}
	return out, nil
}

// emitAsset turns one asset's work list into fabric traffic: raw-bytes
// apps ride a restore → work → remove chain gated through the pending
// cache, everything else is dispatched directly.
func (s *Scheduler) emitAsset(ctx context.Context, catalogName string, store *catalog.Store, assetID int64, work []appAction) ([]task.Task, error) {
	cname, err := store.CachedCname(ctx, assetID)
	if err != nil {
		return nil, err
	}

	var raw, direct []appAction
	for _, aa := range work {
		if rawBytesApps[aa.app] {
			raw = append(raw, aa)
		} else {
			direct = append(direct, aa)
		}
	}

	if len(raw) > 0 {
		managed, err := store.AssetIsManaged(ctx, assetID)
		if err != nil {
			return nil, err
		}
		if !managed {
			s.logger.Warn().
				Str(log.FieldEvent, "scheduler.unmanaged_skipped").
				Str(log.FieldCatalog, catalogName).
				Str(log.FieldCname, cname).
				Int64(log.FieldAssetID, assetID).
				Msg("extraction queued for unmanaged asset, skipping asset")
			return nil, nil
		}
	}

	var emitted []task.Task
	if len(raw) > 0 {
		chain, err := s.buildChain(ctx, catalogName, store, assetID, cname, raw)
		if err != nil {
			return nil, err
		}
		if len(chain) > 0 {
			if err := s.dispatch(ctx, &chain[0]); err != nil {
				return nil, err
			}
			emitted = append(emitted, chain[0])
		}
	}
	for _, aa := range direct {
		args, err := s.enrich(ctx, catalogName, store, assetID, cname, "", aa)
		if errors.Is(err, errSkipTask) {
			continue
		}
		if err != nil {
			return emitted, err
		}
		t := s.maker.Make(aa.app, aa.action, args)
		if err := s.dispatch(ctx, &t); err != nil {
			return emitted, err
		}
		emitted = append(emitted, t)
	}
	return emitted, nil
}

// buildChain assembles restore → raw-bytes tasks → remove, registers each
// hop's continuation, and records the flight. Only the head is returned
// for dispatch; the rest release as predecessors acknowledge.
func (s *Scheduler) buildChain(ctx context.Context, catalogName string, store *catalog.Store, assetID int64, cname string, raw []appAction) ([]task.Task, error) {
	if _, live, err := s.cache.Flight(cname); err != nil {
		return nil, err
	} else if live {
		return nil, nil // chain already in flight
	}

	label, _, _ := names.Divide(cname)
	archive := s.cfg.Catalogs[catalogName].ArchivePath(names.LabelDir(label), cname)
	dataPath := filepath.Join(s.scratch, cname)

	chain := make([]task.Task, 0, len(raw)+2)
	chain = append(chain, s.maker.Make(config.AppFileMover, config.ActionRestore, task.Args{
		Catalog: catalogName,
		AssetID: assetID,
		Cname:   cname,
		From:    archive,
		To:      dataPath,
	}))
	for _, aa := range raw {
		args, err := s.enrich(ctx, catalogName, store, assetID, cname, dataPath, aa)
		if errors.Is(err, errSkipTask) {
			continue
		}
		if err != nil {
			return nil, err
		}
		chain = append(chain, s.maker.Make(aa.app, aa.action, args))
	}
	if len(chain) == 1 {
		return nil, nil // nothing enrichable, no point restoring
	}
	chain = append(chain, s.maker.Make(config.AppFileMover, config.ActionRemove, task.Args{
		Catalog:  catalogName,
		AssetID:  assetID,
		Cname:    cname,
		DataPath: dataPath,
	}))

	ids := make([]string, len(chain))
	for i := range chain {
		ids[i] = chain[i].ID
	}
	for i := len(chain) - 2; i >= 0; i-- {
		if err := s.cache.Put(chain[i].ID, chain[i+1:i+2]); err != nil {
			return nil, err
		}
	}
	if err := s.cache.PutFlight(pending.Flight{
		Cname:    cname,
		Catalog:  catalogName,
		DataPath: dataPath,
		TaskIDs:  ids,
		Started:  time.Now(),
	}); err != nil {
		return nil, err
	}
	return chain, nil
}

// enrich fills a task's arguments from the catalog and analysis replicas.
func (s *Scheduler) enrich(ctx context.Context, catalogName string, store *catalog.Store, assetID int64, cname, dataPath string, aa appAction) (task.Args, error) {
	args := task.Args{Catalog: catalogName, AssetID: assetID, Cname: cname}
	switch aa.app {
	case config.AppLibrosa:
		paths, err := store.FilePathsByAssetAndType(ctx, assetID, "wav")
		if err != nil {
			return args, err
		}
		if len(paths) == 0 {
			return args, errSkipTask
		}
		args.DataPath = dataPath
		args.FilePaths = paths
	case config.AppCueParser:
		paths, err := store.FilePathsByAssetAndType(ctx, assetID, "cue")
		if err != nil {
			return args, err
		}
		if len(paths) == 0 {
			return args, errSkipTask
		}
		args.DataPath = dataPath
		args.FilePaths = paths
	case config.AppPathParser:
		var paths []task.FilePath
		for _, ext := range audioExtensions {
			p, err := store.FilePathsByAssetAndType(ctx, assetID, ext)
			if err != nil {
				return args, err
			}
			paths = append(paths, p...)
		}
		if len(paths) == 0 {
			return args, errSkipTask
		}
		args.FilePaths = paths
	case config.AppDiscogs, config.AppLastfm:
		tracks, err := s.measuredTracks(ctx, catalogName, store, assetID)
		if err != nil {
			return args, err
		}
		args.Tracks = tracks
	case config.AppRutracker:
		// cname is the whole query
	default:
		s.logger.Warn().
			Str(log.FieldEvent, "scheduler.unknown_app").
			Str(log.FieldApp, aa.app).
			Msg("configured app has no enrichment, skipping")
		return args, errSkipTask
	}
	return args, nil
}

// measuredTracks pairs an asset's wav files, in release order, with the
// durations the analysis worker measured. Until every track carries a
// duration the metadata apps have nothing to corroborate against, so the
// asset waits.
func (s *Scheduler) measuredTracks(ctx context.Context, catalogName string, store *catalog.Store, assetID int64) ([]task.TrackDuration, error) {
	if s.analysis == nil {
		return nil, errSkipTask
	}
	files, err := store.TrackList(ctx, assetID, "wav")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errSkipTask
	}
	ids := make([]int64, len(files))
	for i, fd := range files {
		ids[i] = fd.ID
	}
	values, err := s.analysis.DataValues(ctx, catalogName, ids, appdata.DtypeDuration)
	if err != nil {
		return nil, err
	}
	tracks := make([]task.TrackDuration, 0, len(files))
	for _, fd := range files {
		raw, ok := values[fd.ID]
		if !ok {
			return nil, errSkipTask
		}
		d, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errSkipTask
		}
		tracks = append(tracks, task.TrackDuration{FileID: fd.ID, Duration: d})
	}
	return tracks, nil
}

// refreshReplicas reopens every replica snapshot. Exports replace the file
// atomically, so a held handle keeps reading the superseded inode; closing
// and reopening per enumeration is what makes new commits visible.
func (s *Scheduler) refreshReplicas() error {
	s.closeReplicas()
	for _, name := range s.cfg.CatalogNames() {
		path := config.ReplicaPath(s.cfg.CatalogDBPath(name))
		if _, err := os.Stat(path); err != nil {
			continue // nothing intaken yet
		}
		store, err := catalog.OpenReplica(path)
		if err != nil {
			return err
		}
		s.catalogs[name] = store
	}
	seen := map[string]bool{}
	for _, name := range s.cfg.CatalogNames() {
		for _, aa := range s.cfg.EnabledActions(name) {
			if seen[aa.App] {
				continue
			}
			seen[aa.App] = true
			path := config.ReplicaPath(s.cfg.AppDBPath(aa.App))
			if _, err := os.Stat(path); err != nil {
				continue
			}
			ledger, err := appdata.OpenLedger(aa.App, path)
			if err != nil {
				return err
			}
			s.ledgers[aa.App] = ledger
			if aa.App == config.AppLibrosa {
				analysis, err := appdata.OpenAnalysisReplica(path)
				if err != nil {
					return err
				}
				s.analysis = analysis
			}
		}
	}
	return nil
}

func (s *Scheduler) closeReplicas() {
	for name, store := range s.catalogs {
		_ = store.Close()
		delete(s.catalogs, name)
	}
	for app, ledger := range s.ledgers {
		_ = ledger.Close()
		delete(s.ledgers, app)
	}
	if s.analysis != nil {
		_ = s.analysis.Close()
		s.analysis = nil
	}
}
