// SPDX-License-Identifier: MIT

package router

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jdswan/sonicat/internal/task"
)

// Route computes the target and records the decision on the runtime meter
// provider. Runners call this; tests exercise Target directly.
func Route(ctx context.Context, t *task.Task, routerApp, routerType string) string {
	target := Target(t, routerApp, routerType)

	meter := otel.GetMeterProvider().Meter("sonicat.router")
	decisions, _ := meter.Int64Counter("sonicat_router_decisions_total",
		metric.WithDescription("Total routing decisions"))
	label := target
	if label == Terminal {
		label = "terminal"
	}
	decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("router", routerApp),
		attribute.String("app", t.AppName),
		attribute.String("target", label),
	))
	return target
}
