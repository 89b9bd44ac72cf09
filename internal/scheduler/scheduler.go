// SPDX-License-Identifier: MIT

// Package scheduler implements the Tasks role: it enumerates outstanding
// work from the ledgers, emits task chains onto the queue fabric, and
// releases pending continuations as completed tasks acknowledge back.
//
// The scheduler holds no authoritative state of its own. The catalog and
// the derived-data stores decide what is outstanding; the Badger-backed
// pending cache only carries what comes next for tasks already in flight,
// and losing it costs at worst one re-restore, reconciled by the ledgers
// at the next enumeration.
package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jdswan/sonicat/internal/appdata"
	"github.com/jdswan/sonicat/internal/catalog"
	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/metrics"
	"github.com/jdswan/sonicat/internal/pending"
	"github.com/jdswan/sonicat/internal/queue"
	"github.com/jdswan/sonicat/internal/task"
)

// quarantineCap is the consecutive-failure count after which an (app,
// asset) pair stops being reissued for the rest of the process lifetime.
// The counter is in-memory on purpose: a restart is the operator's way of
// lifting the quarantine.
const quarantineCap = 3

// Fabric is the slice of the queue broker the scheduler drives.
type Fabric interface {
	Enqueue(ctx context.Context, target, queueName string, t *task.Task) error
	Next(ctx context.Context, role string, wait time.Duration) (*task.Task, error)
}

type quarKey struct {
	app   string
	asset int64
}

// Scheduler is the Tasks role.
type Scheduler struct {
	cfg    *config.AppConfig
	fabric Fabric
	cache  *pending.Cache
	maker  task.Maker

	// Read replicas, reopened at each enumeration so atomically swapped
	// snapshot files are picked up.
	catalogs map[string]*catalog.Store
	ledgers  map[string]*appdata.Ledger
	analysis *appdata.AnalysisStore

	quarantine map[quarKey]int
	scratch    string
	wait       time.Duration
	idle       time.Duration
	runID      string
	logger     zerolog.Logger
}

// New builds a scheduler over an open pending cache and a connected
// fabric. Replicas open lazily at the first enumeration.
func New(cfg *config.AppConfig, fabric Fabric, cache *pending.Cache) *Scheduler {
	idle := time.Duration(cfg.Tasks.IdleSeconds) * time.Second
	if idle <= 0 {
		idle = 30 * time.Second
	}
	runID := uuid.NewString()
	return &Scheduler{
		cfg:        cfg,
		fabric:     fabric,
		cache:      cache,
		catalogs:   map[string]*catalog.Store{},
		ledgers:    map[string]*appdata.Ledger{},
		quarantine: map[quarKey]int{},
		scratch:    cfg.TempPath(cfg.AppMoniker(config.AppFileMover)),
		wait:       5 * time.Second,
		idle:       idle,
		runID:      runID,
		logger:     log.WithComponent(config.AppTasks).With().Str("run_id", runID).Logger(),
	}
}

// Run is the scheduler's event loop. Acknowledgements and commands drain
// first; an empty fabric triggers an enumeration, and an empty enumeration
// idles. Cancellation is observed between cycles only.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ReclaimOrphans(ctx)
	for {
		if ctx.Err() != nil {
			s.closeReplicas()
			return nil
		}
		incoming, err := s.fabric.Next(ctx, config.AppTasks, s.wait)
		switch {
		case errors.Is(err, queue.ErrEmpty):
			emitted, cycleErr := s.RunCycle(ctx, nil)
			if cycleErr != nil {
				s.logger.Error().Err(cycleErr).
					Str(log.FieldEvent, "scheduler.cycle_failed").
					Msg("enumeration cycle failed")
			}
			if len(emitted) == 0 {
				metrics.SchedulerCycle("idle")
				s.sleep(ctx, s.idle)
			}
		case err != nil:
			if ctx.Err() != nil {
				s.closeReplicas()
				return nil
			}
			s.logger.Error().Err(err).
				Str(log.FieldEvent, "scheduler.dequeue_failed").
				Msg("fabric dequeue failed")
			s.sleep(ctx, s.wait)
		default:
			if _, cycleErr := s.RunCycle(ctx, incoming); cycleErr != nil {
				s.logger.Error().Err(cycleErr).
					Str(log.FieldEvent, "scheduler.cycle_failed").
					Str(log.FieldTaskID, incoming.ID).
					Msg("cycle failed")
			}
		}
	}
}

// RunCycle processes one scheduler step. A nil incoming task enumerates;
// a command-bridge task dispatches on the control plane; anything else is
// an inbound completion. Emitted tasks are already enqueued on return.
func (s *Scheduler) RunCycle(ctx context.Context, incoming *task.Task) ([]task.Task, error) {
	if incoming == nil {
		metrics.SchedulerCycle("make_tasks")
		return s.MakeTasks(ctx, s.cfg.Tasks.Threshold)
	}
	if incoming.AppName == config.AppCommandBridge {
		metrics.SchedulerCycle("command")
		return s.runCommand(ctx, incoming)
	}
	metrics.SchedulerCycle("ack")
	return s.acknowledge(ctx, incoming)
}

// acknowledge handles a task returning from the fabric. Success releases
// the cached continuation; failure counts toward quarantine and salvages
// the chain's trailing cleanup so no scratch directory leaks.
func (s *Scheduler) acknowledge(ctx context.Context, t *task.Task) ([]task.Task, error) {
	if t.AppName == config.AppFileMover && t.Action == config.ActionRemove && t.Args.DataPath != "" {
		if err := s.cache.DeleteFlight(filepath.Base(t.Args.DataPath)); err != nil {
			s.logger.Warn().Err(err).
				Str(log.FieldEvent, "scheduler.flight_delete_failed").
				Str(log.FieldTaskID, t.ID).
				Msg("flight record not cleared")
		}
	}
	key := quarKey{app: t.AppName, asset: t.Args.AssetID}
	if !t.Succeeded() {
		if t.Args.AssetID != 0 {
			s.quarantine[key]++
			if s.quarantine[key] == quarantineCap {
				s.logger.Warn().
					Str(log.FieldEvent, "scheduler.asset_quarantined").
					Str(log.FieldApp, t.AppName).
					Int64(log.FieldAssetID, t.Args.AssetID).
					Str(log.FieldCatalog, t.Args.Catalog).
					Msg("asset quarantined until restart")
			}
		}
		return s.salvageCleanup(ctx, t)
	}
	delete(s.quarantine, key)

	successors, err := s.cache.CheckIn(t.ID)
	if err != nil {
		return nil, err
	}
	emitted := make([]task.Task, 0, len(successors))
	for i := range successors {
		succ := &successors[i]
		if err := s.dispatch(ctx, succ); err != nil {
			return emitted, err
		}
		emitted = append(emitted, *succ)
	}
	if len(emitted) == 0 {
		s.logger.Debug().
			Str(log.FieldEvent, "scheduler.chain_complete").
			Str(log.FieldTaskID, t.ID).
			Str(log.FieldApp, t.AppName).
			Msg("no continuation, chain complete")
	}
	return emitted, nil
}

// salvageCleanup walks a failed task's continuation chain and emits only
// its trailing file_mover.remove, so the restored scratch directory is
// collected even though the remaining work is abandoned. The abandoned
// steps reappear at the next enumeration.
func (s *Scheduler) salvageCleanup(ctx context.Context, failed *task.Task) ([]task.Task, error) {
	var removeTask *task.Task
	id := failed.ID
	for {
		successors, err := s.cache.CheckIn(id)
		if err != nil {
			return nil, err
		}
		if len(successors) == 0 {
			break
		}
		next := successors[len(successors)-1]
		if next.AppName == config.AppFileMover && next.Action == config.ActionRemove {
			removeTask = &next
		}
		id = next.ID
	}
	s.logger.Warn().
		Str(log.FieldEvent, "scheduler.task_failed").
		Str(log.FieldTaskID, failed.ID).
		Str(log.FieldApp, failed.AppName).
		Str(log.FieldAction, failed.Action).
		Int64(log.FieldAssetID, failed.Args.AssetID).
		Bool("cleanup_salvaged", removeTask != nil).
		Msg("task failed, continuations dropped")
	if removeTask == nil {
		return nil, nil
	}
	if err := s.dispatch(ctx, removeTask); err != nil {
		return nil, err
	}
	return []task.Task{*removeTask}, nil
}

// dispatch enqueues a scheduler-emitted task toward the worker it names.
func (s *Scheduler) dispatch(ctx context.Context, t *task.Task) error {
	if err := s.fabric.Enqueue(ctx, t.AppName, queue.Inbound, t); err != nil {
		return err
	}
	metrics.TaskEmitted(t.AppName, t.Action)
	s.logger.Debug().
		Str(log.FieldEvent, "scheduler.task_emitted").
		Str(log.FieldTaskID, t.ID).
		Str(log.FieldApp, t.AppName).
		Str(log.FieldAction, t.Action).
		Int64(log.FieldAssetID, t.Args.AssetID).
		Msg("task emitted")
	return nil
}

// ReclaimOrphans sweeps the shared scratch tree for restored directories
// with no live flight record and issues a remove for each. Dropped
// continuations are the only way such directories appear.
func (s *Scheduler) ReclaimOrphans(ctx context.Context) {
	entries, err := os.ReadDir(s.scratch)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).
				Str(log.FieldEvent, "scheduler.orphan_scan_failed").
				Str(log.FieldPath, s.scratch).
				Msg("scratch scan failed")
		}
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		_, live, err := s.cache.Flight(entry.Name())
		if err != nil {
			s.logger.Warn().Err(err).
				Str(log.FieldEvent, "scheduler.flight_read_failed").
				Str(log.FieldCname, entry.Name()).
				Msg("flight record unreadable, leaving directory")
			continue
		}
		if live {
			continue
		}
		remove := s.maker.Make(config.AppFileMover, config.ActionRemove, task.Args{
			DataPath: filepath.Join(s.scratch, entry.Name()),
		})
		if err := s.dispatch(ctx, &remove); err != nil {
			s.logger.Error().Err(err).
				Str(log.FieldEvent, "scheduler.orphan_reclaim_failed").
				Str(log.FieldCname, entry.Name()).
				Msg("orphan remove not emitted")
			continue
		}
		metrics.OrphanReclaimed()
		s.logger.Info().
			Str(log.FieldEvent, "scheduler.orphan_reclaimed").
			Str(log.FieldCname, entry.Name()).
			Msg("orphaned scratch directory scheduled for removal")
	}
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
