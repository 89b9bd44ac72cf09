// SPDX-License-Identifier: MIT

// Package metrics exposes the Prometheus instrumentation shared by the
// scheduler, the worker harness, and the queue fabric. All metrics live in
// the default registry and are served by the ops surface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sonicat",
		Name:      "tasks_processed_total",
		Help:      "Tasks processed by worker and outcome",
	}, []string{"app", "action", "outcome"}) // outcome=success|failure

	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sonicat",
		Name:      "task_duration_seconds",
		Help:      "Task execution time by worker",
		Buckets:   []float64{.05, .25, 1, 5, 15, 60, 300},
	}, []string{"app", "action"})

	tasksEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sonicat",
		Name:      "scheduler_tasks_emitted_total",
		Help:      "Tasks emitted by the scheduler",
	}, []string{"app", "action"})

	schedulerCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sonicat",
		Name:      "scheduler_cycles_total",
		Help:      "Scheduler cycles by kind",
	}, []string{"kind"}) // kind=make_tasks|inbound|command|idle

	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sonicat",
		Name:      "queue_depth",
		Help:      "Broker queue depth at last poll",
	}, []string{"role", "queue"})

	queueOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sonicat",
		Name:      "queue_ops_total",
		Help:      "Broker operations by outcome",
	}, []string{"op", "outcome"}) // op=enqueue|dequeue, outcome=ok|empty|error

	apiCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sonicat",
		Name:      "api_calls_total",
		Help:      "Outbound API calls by client and outcome",
	}, []string{"api", "outcome"}) // outcome=ok|error|invalid

	apiThrottleWait = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sonicat",
		Name:      "api_throttle_wait_seconds_total",
		Help:      "Cumulative time spent waiting on API throttles",
	}, []string{"api"})

	ledgerRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sonicat",
		Name:      "ledger_rows",
		Help:      "Ledger sizes observed at the last scheduler enumeration",
	}, []string{"app", "catalog", "ledger"}) // ledger=completed|failed

	orphansReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sonicat",
		Name:      "scheduler_orphans_reclaimed_total",
		Help:      "Orphaned scratch directories reclaimed at startup",
	})
)

// TaskProcessed counts one finished task execution.
func TaskProcessed(app, action string, success bool, elapsed time.Duration) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	tasksProcessed.WithLabelValues(app, action, outcome).Inc()
	taskDuration.WithLabelValues(app, action).Observe(elapsed.Seconds())
}

// TaskEmitted counts one scheduler emission.
func TaskEmitted(app, action string) {
	tasksEmitted.WithLabelValues(app, action).Inc()
}

// SchedulerCycle counts one scheduler cycle of the given kind.
func SchedulerCycle(kind string) {
	schedulerCycles.WithLabelValues(kind).Inc()
}

// SetQueueDepth records a polled broker depth.
func SetQueueDepth(role, queue string, depth int64) {
	queueDepth.WithLabelValues(role, queue).Set(float64(depth))
}

// QueueOp counts one broker operation.
func QueueOp(op, outcome string) {
	queueOps.WithLabelValues(op, outcome).Inc()
}

// APICall counts one outbound API call.
func APICall(api, outcome string) {
	apiCalls.WithLabelValues(api, outcome).Inc()
}

// APIThrottleWait accumulates throttle sleep time.
func APIThrottleWait(api string, d time.Duration) {
	apiThrottleWait.WithLabelValues(api).Add(d.Seconds())
}

// SetLedgerRows records ledger sizes seen during enumeration.
func SetLedgerRows(app, catalog, ledger string, n int) {
	ledgerRows.WithLabelValues(app, catalog, ledger).Set(float64(n))
}

// OrphanReclaimed counts one reclaimed scratch directory.
func OrphanReclaimed() {
	orphansReclaimed.Inc()
}
