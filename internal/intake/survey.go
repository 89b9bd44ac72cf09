// SPDX-License-Identifier: MIT

package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"golang.org/x/sync/errgroup"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/inventory"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/task"
)

const defaultSurveyParallelism = 4

// SurveyBatch walks every catalog's managed tree and writes one survey JSON
// per archived asset to <export>/surveys/<cname>.json. Archives are restored
// to scratch, surveyed, and the scratch copy removed; assets are processed
// with bounded parallelism. Per-asset failures are logged and skipped.
func (c *Clerk) SurveyBatch(ctx context.Context, parallel int) error {
	if parallel <= 0 {
		parallel = defaultSurveyParallelism
	}
	// A fresh surveyor without replicas: surveying an archived asset must
	// not trip the duplicate check.
	surveyor, err := inventory.New(c.cfg)
	if err != nil {
		return err
	}
	defer func() { _ = surveyor.Close() }()

	for _, catalogName := range c.cfg.CatalogNames() {
		entry := c.cfg.Catalogs[catalogName]
		if entry.Path.Managed == "" || entry.Path.Export == "" {
			continue
		}
		if err := c.surveyCatalog(ctx, catalogName, entry, surveyor, parallel); err != nil {
			return err
		}
	}
	return nil
}

func (c *Clerk) surveyCatalog(ctx context.Context, catalogName string, entry config.CatalogConfig, surveyor *inventory.Surveyor, parallel int) error {
	archives, err := filepath.Glob(filepath.Join(entry.Path.Managed, "*", "*.rar"))
	if err != nil {
		return fmt.Errorf("intake: scan %s: %w", entry.Path.Managed, err)
	}
	outDir := filepath.Join(entry.Path.Export, "surveys")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("intake: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, archive := range archives {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cname := strings.TrimSuffix(filepath.Base(archive), ".rar")
			if err := c.surveyOne(gctx, catalogName, surveyor, archive, cname, outDir); err != nil {
				c.logger.Warn().Err(err).
					Str(log.FieldEvent, "survey.failed").
					Str(log.FieldCatalog, catalogName).
					Str(log.FieldCname, cname).
					Msg("survey skipped")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	c.logger.Info().
		Str(log.FieldEvent, "survey.batch_done").
		Str(log.FieldCatalog, catalogName).
		Int("archives", len(archives)).
		Msg("batch survey finished")
	return nil
}

// surveyOne restores one archive to scratch, surveys it, and writes the
// survey JSON. The scratch copy is removed on every path out.
func (c *Clerk) surveyOne(ctx context.Context, catalogName string, surveyor *inventory.Surveyor, archive, cname, outDir string) error {
	scratch := filepath.Join(c.scratchRoot(), cname)

	restore := c.maker.Make(config.AppFileMover, config.ActionRestore, task.Args{
		From: archive,
		To:   scratch,
	})
	if err := c.mover.RunTask(ctx, &restore); err != nil {
		return err
	}
	defer func() {
		remove := c.maker.Make(config.AppFileMover, config.ActionRemove, task.Args{DataPath: scratch})
		_ = c.mover.RunTask(context.WithoutCancel(ctx), &remove)
	}()

	inv := c.maker.Make(config.AppInventory, config.ActionInventory, task.Args{
		Catalog:  catalogName,
		Cname:    cname,
		DataPath: scratch,
	})
	if err := surveyor.RunTask(ctx, &inv); err != nil {
		return err
	}
	var survey task.Survey
	if err := inv.ResultPayload(task.PayloadFileData, &survey); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(survey, "", "  ")
	if err != nil {
		return fmt.Errorf("intake: encode survey: %w", err)
	}
	out := filepath.Join(outDir, cname+".json")
	if err := renameio.WriteFile(out, raw, 0o644); err != nil {
		return fmt.Errorf("intake: write %s: %w", out, err)
	}
	return nil
}

// scratchRoot is the worker's extraction area under the system temp tree.
func (c *Clerk) scratchRoot() string {
	moniker := c.cfg.AppMoniker(config.AppCatalogIntake)
	if moniker == "" {
		moniker = "CatalogIntake"
	}
	return c.cfg.TempPath(moniker)
}
