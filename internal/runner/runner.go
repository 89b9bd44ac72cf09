// SPDX-License-Identifier: MIT

// Package runner hosts one worker on the queue fabric. The harness owns
// the event loop: dequeue a task, hand it to the worker, route the result
// toward the next hop. Failure is a routed outcome, never an exception
// channel; the only task a runner drops is one the router marks terminal.
package runner

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/metrics"
	"github.com/jdswan/sonicat/internal/queue"
	"github.com/jdswan/sonicat/internal/router"
	"github.com/jdswan/sonicat/internal/task"
)

// Fabric is the slice of the queue broker a runner drives.
type Fabric interface {
	Enqueue(ctx context.Context, target, queueName string, t *task.Task) error
	Next(ctx context.Context, role string, wait time.Duration) (*task.Task, error)
}

// Worker is the contract a hosted app implements; see internal/worker.
type Worker interface {
	Name() string
	RunTask(ctx context.Context, t *task.Task) error
}

// ReplicaLoader is implemented by workers that consult read replicas.
type ReplicaLoader interface {
	LoadReplicas(ctx context.Context) error
}

// Runner is one worker's event loop.
type Runner struct {
	id     string
	role   string
	typ    string
	fabric Fabric
	worker Worker
	wait   time.Duration
	logger zerolog.Logger
}

// New binds a worker to the fabric. The runner's role and routing type
// come from the worker's name and its configured app type.
func New(cfg *config.AppConfig, fabric Fabric, w Worker) *Runner {
	id := uuid.NewString()
	role := w.Name()
	return &Runner{
		id:     id,
		role:   role,
		typ:    cfg.TypeOfApp(role),
		fabric: fabric,
		worker: w,
		wait:   5 * time.Second,
		logger: log.WithComponent(role).With().Str(log.FieldRunnerID, id).Logger(),
	}
}

// Run loops until the context is cancelled. Cancellation is observed
// between cycles only: a task in progress finishes and routes before the
// loop exits.
func (r *Runner) Run(ctx context.Context) error {
	if rl, ok := r.worker.(ReplicaLoader); ok {
		if err := rl.LoadReplicas(ctx); err != nil {
			return err
		}
	}
	r.logger.Info().
		Str(log.FieldEvent, "runner.started").
		Str(log.FieldApp, r.role).
		Msg("runner started")
	for {
		if ctx.Err() != nil {
			r.logger.Info().
				Str(log.FieldEvent, "runner.stopped").
				Msg("runner stopped")
			return nil
		}
		err := r.RunCycle(ctx)
		if err == nil || errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if ctx.Err() != nil {
			continue // cancellation surfaces as a dequeue error
		}
		r.logger.Error().Err(err).
			Str(log.FieldEvent, "runner.cycle_failed").
			Msg("cycle failed")
		r.sleep(ctx, r.wait)
	}
}

// RunCycle performs one Idle → Dequeued → Processing → Routed pass.
// Returns queue.ErrEmpty when the bounded wait found nothing.
func (r *Runner) RunCycle(ctx context.Context) error {
	t, err := r.NextTask(ctx)
	if err != nil {
		return err
	}
	r.process(ctx, t)
	return r.route(ctx, t)
}

// NextTask dequeues the role's next task, command queue first.
func (r *Runner) NextTask(ctx context.Context) (*task.Task, error) {
	return r.fabric.Next(ctx, r.role, r.wait)
}

// process runs the worker and settles the task's outcome. A worker error
// becomes a failed outcome; a worker that returns without setting one
// (including a pass-through of a foreign task) leaves success implied.
func (r *Runner) process(ctx context.Context, t *task.Task) {
	tracer := otel.GetTracerProvider().Tracer("sonicat.runner")
	ctx, span := tracer.Start(ctx, "task."+t.AppName+"."+t.Action)
	span.SetAttributes(
		attribute.String("task.id", t.ID),
		attribute.String("task.app", t.AppName),
		attribute.String("task.action", t.Action),
		attribute.Int64("task.asset_id", t.Args.AssetID),
	)
	defer span.End()

	began := time.Now()
	err := r.worker.RunTask(ctx, t)
	switch {
	case err != nil:
		t.Fail(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, task.KindOf(err))
		r.logger.Warn().Err(err).
			Str(log.FieldEvent, "runner.task_failed").
			Str(log.FieldTaskID, t.ID).
			Str(log.FieldApp, t.AppName).
			Str(log.FieldAction, t.Action).
			Int64(log.FieldAssetID, t.Args.AssetID).
			Msg("task failed")
	case t.Result == nil:
		t.Complete()
	}
	metrics.TaskProcessed(t.AppName, t.Action, t.Succeeded(), time.Since(began))
	if t.Succeeded() {
		r.logger.Info().
			Str(log.FieldEvent, "runner.task_done").
			Str(log.FieldTaskID, t.ID).
			Str(log.FieldApp, t.AppName).
			Str(log.FieldAction, t.Action).
			Dur("elapsed", time.Since(began)).
			Msg("task processed")
	}
}

// route enqueues the settled task toward the router's chosen target. The
// routing context is detached from the loop context so a shutdown during
// processing cannot strand a finished task.
func (r *Runner) route(ctx context.Context, t *task.Task) error {
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	target := router.Route(ctx, t, r.role, r.typ)
	r.logger.Debug().
		Str(log.FieldEvent, "runner.task_routed").
		Str(log.FieldTaskID, t.ID).
		Str(log.FieldTarget, target).
		Msg("task routed")
	return r.fabric.Enqueue(ctx, target, queue.Inbound, t)
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
