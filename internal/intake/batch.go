// SPDX-License-Identifier: MIT

package intake

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/names"
	"github.com/jdswan/sonicat/internal/task"
)

// NoncompliantFile is the batch report written beside a catalog's exports.
const NoncompliantFile = "noncompliant-assets.csv"

// Noncompliant is one intake directory that failed the survey.
type Noncompliant struct {
	Cname  string
	Reason string
}

// Report summarizes one batch run.
type Report struct {
	Committed    int
	Noncompliant []Noncompliant
}

// RunBatch walks every catalog's intake directory: each asset directory is
// surveyed, committed and archived into the managed tree. Directories that
// fail the survey are skipped and listed in noncompliant-assets.csv; the
// batch continues past them.
func (c *Clerk) RunBatch(ctx context.Context) (*Report, error) {
	if err := c.surveyor.LoadReplicas(ctx); err != nil {
		return nil, err
	}
	report := &Report{}
	for _, catalogName := range c.cfg.CatalogNames() {
		entry := c.cfg.Catalogs[catalogName]
		if entry.Path.Intake == "" {
			continue
		}
		if err := c.batchCatalog(ctx, catalogName, entry, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (c *Clerk) batchCatalog(ctx context.Context, catalogName string, entry config.CatalogConfig, report *Report) error {
	dirents, err := os.ReadDir(entry.Path.Intake)
	if err != nil {
		return fmt.Errorf("intake: read %s: %w", entry.Path.Intake, err)
	}
	var failed []Noncompliant
	for _, dirent := range dirents {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !dirent.IsDir() {
			continue
		}
		cname := dirent.Name()
		if err := c.intakeOne(ctx, catalogName, entry, cname); err != nil {
			failed = append(failed, Noncompliant{Cname: cname, Reason: err.Error()})
			c.logger.Warn().Err(err).
				Str(log.FieldEvent, "intake.noncompliant").
				Str(log.FieldCatalog, catalogName).
				Str(log.FieldCname, cname).
				Msg("intake skipped")
			continue
		}
		report.Committed++
	}
	report.Noncompliant = append(report.Noncompliant, failed...)
	if err := writeNoncompliant(reportPath(entry), failed); err != nil {
		return err
	}
	c.logger.Info().
		Str(log.FieldEvent, "intake.batch_done").
		Str(log.FieldCatalog, catalogName).
		Int("committed", report.Committed).
		Int("noncompliant", len(failed)).
		Msg("batch intake finished")
	return nil
}

// intakeOne runs the survey → commit → archive chain for one directory.
func (c *Clerk) intakeOne(ctx context.Context, catalogName string, entry config.CatalogConfig, cname string) error {
	dataPath := filepath.Join(entry.Path.Intake, cname)

	inv := c.maker.Make(config.AppInventory, config.ActionInventory, task.Args{
		Catalog:  catalogName,
		Cname:    cname,
		DataPath: dataPath,
	})
	if err := c.surveyor.RunTask(ctx, &inv); err != nil {
		return err
	}
	var ad task.AssetData
	if err := inv.ResultPayload(task.PayloadAssetData, &ad); err != nil {
		return err
	}
	var survey task.Survey
	if err := inv.ResultPayload(task.PayloadFileData, &survey); err != nil {
		return err
	}

	assetID, err := c.commit(ctx, catalogName, ad, survey)
	if err != nil {
		return err
	}

	arch := c.maker.Make(config.AppFileMover, config.ActionArchive, task.Args{
		From: dataPath,
		To:   entry.ArchivePath(names.LabelDir(ad.Label), cname),
	})
	if err := c.mover.RunTask(ctx, &arch); err != nil {
		return err
	}
	c.logger.Info().
		Str(log.FieldEvent, "intake.archived").
		Str(log.FieldCatalog, catalogName).
		Str(log.FieldCname, cname).
		Int64(log.FieldAssetID, assetID).
		Msg("asset archived")
	return nil
}

// reportPath places the noncompliant listing under the export root when one
// is configured, beside the intake directory otherwise.
func reportPath(entry config.CatalogConfig) string {
	root := entry.Path.Export
	if root == "" {
		root = entry.Path.Intake
	}
	return filepath.Join(root, NoncompliantFile)
}

// writeNoncompliant replaces the listing atomically. An empty batch still
// writes the header so a stale listing never survives a clean run.
func writeNoncompliant(path string, rows []Noncompliant) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("intake: %w", err)
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"cname", "reason"}); err != nil {
		return fmt.Errorf("intake: %w", err)
	}
	for _, row := range rows {
		if err := w.Write([]string{row.Cname, row.Reason}); err != nil {
			return fmt.Errorf("intake: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("intake: %w", err)
	}
	if err := renameio.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("intake: write %s: %w", path, err)
	}
	return nil
}
