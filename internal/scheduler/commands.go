// SPDX-License-Identifier: MIT

package scheduler

import (
	"context"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/names"
	"github.com/jdswan/sonicat/internal/queue"
	"github.com/jdswan/sonicat/internal/task"
)

// runCommand dispatches a control-plane task. Commands whose state lives in
// the app_data process (ledger purges, replica exports) are forwarded to
// its command queue; the rest execute here.
func (s *Scheduler) runCommand(ctx context.Context, t *task.Task) ([]task.Task, error) {
	s.logger.Info().
		Str(log.FieldEvent, "scheduler.command").
		Str(log.FieldTaskID, t.ID).
		Str(log.FieldAction, t.Action).
		Msg("command received")
	switch t.Action {
	case config.CmdMakeTasks:
		threshold := t.Args.Threshold
		if threshold == 0 {
			threshold = s.cfg.Tasks.Threshold
		}
		return s.MakeTasks(ctx, threshold, t.Args.Catalogs...)
	case config.CmdReclaimOrphans:
		s.ReclaimOrphans(ctx)
		return nil, nil
	case config.CmdIntake:
		return s.intakeChain(ctx, t)
	case config.CmdExportReplicas, config.CmdPurgeFailed:
		if err := s.fabric.Enqueue(ctx, config.AppAppData, queue.Command, t); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		s.logger.Warn().
			Str(log.FieldEvent, "scheduler.unknown_command").
			Str(log.FieldAction, t.Action).
			Msg("command dropped")
		return nil, nil
	}
}

// intakeChain sequences a new asset into the catalog: inventory surveys
// the staged directory, app_data commits the survey, and the archive step
// released here packs the directory into the managed tree. The inventory
// task returns through app_data and file_mover, so the archive waits on
// the committed survey.
func (s *Scheduler) intakeChain(ctx context.Context, t *task.Task) ([]task.Task, error) {
	catalogName, cname, dataPath := t.Args.Catalog, t.Args.Cname, t.Args.DataPath
	entry, ok := s.cfg.Catalogs[catalogName]
	if !ok {
		return nil, task.Validation("scheduler: intake names unknown catalog %q", catalogName)
	}
	if !names.IsCanonical(cname) {
		return nil, task.Validation("scheduler: intake cname %q not canonical", cname)
	}
	if dataPath == "" {
		return nil, task.Validation("scheduler: intake names no data path")
	}

	label, _, _ := names.Divide(cname)
	inv := s.maker.Make(config.AppInventory, config.ActionInventory, task.Args{
		Catalog:  catalogName,
		Cname:    cname,
		DataPath: dataPath,
	})
	archive := s.maker.Make(config.AppFileMover, config.ActionArchive, task.Args{
		Catalog: catalogName,
		Cname:   cname,
		From:    dataPath,
		To:      entry.ArchivePath(names.LabelDir(label), cname),
	})
	if err := s.cache.Put(inv.ID, []task.Task{archive}); err != nil {
		return nil, err
	}
	if err := s.dispatch(ctx, &inv); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str(log.FieldEvent, "scheduler.intake_started").
		Str(log.FieldCatalog, catalogName).
		Str(log.FieldCname, cname).
		Msg("intake chain emitted")
	return []task.Task{inv}, nil
}
