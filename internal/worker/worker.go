// SPDX-License-Identifier: MIT

// Package worker defines the contract between the runner harness and the
// app implementations it hosts.
package worker

import (
	"context"

	"github.com/jdswan/sonicat/internal/task"
)

// Worker is one app on the task fabric. RunTask mutates only the task's
// results and outcome; an error return makes the harness record a failed
// outcome with the error's failure kind. A worker receiving a task it has
// no handling for (a chained task passing through on its way back to the
// scheduler) returns nil without touching it.
type Worker interface {
	Name() string
	RunTask(ctx context.Context, t *task.Task) error
}

// ReplicaLoader is implemented by workers that consult read replicas of
// the catalog or derived-data stores. The harness calls it at startup and
// again on a reload command.
type ReplicaLoader interface {
	LoadReplicas(ctx context.Context) error
}
