// SPDX-License-Identifier: MIT

// Package intake implements the catalog_intake worker: the offline commit
// path for surveyed assets. It consumes survey payloads — from inventory
// results carried on a task, or from survey JSON files — and inserts label,
// asset and files in one transaction. Batch mode walks a catalog's intake
// directory end to end: survey, commit, archive into the managed tree.
package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jdswan/sonicat/internal/catalog"
	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/inventory"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/names"
	"github.com/jdswan/sonicat/internal/task"
)

// Mover is the slice of the file_mover worker the batch paths drive
// directly, without a queue in between.
type Mover interface {
	RunTask(ctx context.Context, t *task.Task) error
}

// Clerk is the catalog_intake worker.
type Clerk struct {
	cfg      *config.AppConfig
	surveyor *inventory.Surveyor
	mover    Mover
	maker    task.Maker

	mu     sync.Mutex
	stores map[string]*catalog.Store // live handles, opened on first commit

	logger zerolog.Logger
}

// New builds the worker with its own inventory surveyor for batch mode.
func New(cfg *config.AppConfig, mover Mover) (*Clerk, error) {
	surveyor, err := inventory.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Clerk{
		cfg:      cfg,
		surveyor: surveyor,
		mover:    mover,
		stores:   make(map[string]*catalog.Store),
		logger:   log.WithComponent(config.AppCatalogIntake),
	}, nil
}

// Name implements worker.Worker.
func (c *Clerk) Name() string {
	return config.AppCatalogIntake
}

// Close releases the live catalog handles and the surveyor's replicas.
func (c *Clerk) Close() error {
	c.mu.Lock()
	for name, store := range c.stores {
		_ = store.Close()
		delete(c.stores, name)
	}
	c.mu.Unlock()
	return c.surveyor.Close()
}

// RunTask commits one intake task. The survey arrives either as attached
// inventory payloads or as a survey JSON file named by the data path. Tasks
// from other apps pass through untouched.
func (c *Clerk) RunTask(ctx context.Context, t *task.Task) error {
	if t.AppName != config.AppCatalogIntake {
		return nil
	}
	if t.Action != config.ActionIntake {
		return task.Validation("catalog_intake: unknown action %q", t.Action)
	}
	if _, ok := c.cfg.Catalogs[t.Args.Catalog]; !ok {
		return task.Validation("catalog_intake: unknown catalog %q", t.Args.Catalog)
	}

	var ad task.AssetData
	var survey task.Survey
	if err := t.ResultPayload(task.PayloadAssetData, &ad); err == nil {
		if err := t.ResultPayload(task.PayloadFileData, &survey); err != nil {
			return task.Validation("catalog_intake: %v", err)
		}
	} else {
		loaded, err := loadSurveyFile(t.Args.DataPath)
		if err != nil {
			return err
		}
		cname := t.Args.Cname
		if cname == "" {
			cname = surveyStem(t.Args.DataPath)
		}
		if !names.IsCanonical(cname) {
			return task.Validation("catalog_intake: not a canonical name: %q", cname)
		}
		label, _, _ := names.Divide(cname)
		// A survey file commit is catalog-only: no archive exists for it.
		ad = task.AssetData{Label: label, Cname: cname, Managed: 0}
		survey = loaded
	}

	assetID, err := c.commit(ctx, t.Args.Catalog, ad, survey)
	if err != nil {
		return err
	}
	c.logger.Info().
		Str(log.FieldEvent, "intake.committed").
		Str(log.FieldTaskID, t.ID).
		Str(log.FieldCatalog, t.Args.Catalog).
		Str(log.FieldCname, ad.Cname).
		Int64(log.FieldAssetID, assetID).
		Msg("asset committed")
	return nil
}

// commit inserts the surveyed asset into the live catalog in one
// transaction and refreshes the read replica.
func (c *Clerk) commit(ctx context.Context, catalogName string, ad task.AssetData, survey task.Survey) (int64, error) {
	store, err := c.catalogStore(catalogName)
	if err != nil {
		return 0, err
	}
	assetID, err := store.IntakeAsset(ctx, ad, survey)
	if err != nil {
		return 0, err
	}
	if err := store.ExportReplica(); err != nil {
		c.logger.Warn().Err(err).
			Str(log.FieldCatalog, catalogName).
			Msg("replica export failed, will retry on next commit")
	}
	return assetID, nil
}

func (c *Clerk) catalogStore(name string) (*catalog.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if store, ok := c.stores[name]; ok {
		return store, nil
	}
	store, err := catalog.Open(c.cfg.CatalogDBPath(name))
	if err != nil {
		return nil, fmt.Errorf("catalog_intake: open catalog %s: %w", name, err)
	}
	c.stores[name] = store
	return store, nil
}

// loadSurveyFile reads a survey JSON document written by batch survey.
func loadSurveyFile(path string) (task.Survey, error) {
	if path == "" {
		return nil, task.Validation("catalog_intake: no survey payload and no data path")
	}
	raw, err := os.ReadFile(path) // #nosec G304 -- operator-provided survey path
	if err != nil {
		return nil, task.Validation("catalog_intake: read survey: %v", err)
	}
	var survey task.Survey
	if err := json.Unmarshal(raw, &survey); err != nil {
		return nil, task.Validation("catalog_intake: parse survey: %v", err)
	}
	if len(survey) == 0 {
		return nil, task.Validation("catalog_intake: empty survey: %s", path)
	}
	return survey, nil
}

func surveyStem(path string) string {
	base := path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	return strings.TrimSuffix(base, ".json")
}
