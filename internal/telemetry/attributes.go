// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"

	"github.com/jdswan/sonicat/internal/task"
)

// Attribute keys shared by task spans across the runners and scheduler.
const (
	TaskIDKey      = "task.id"
	TaskAppKey     = "task.app"
	TaskActionKey  = "task.action"
	TaskAssetIDKey = "task.asset_id"
	TaskCatalogKey = "task.catalog"
	TaskOutcomeKey = "task.outcome"
	TaskKindKey    = "task.failure_kind"

	StoreCatalogKey = "store.catalog"
	StoreReplicaKey = "store.replica"
)

// TaskAttributes identifies a task on a span.
func TaskAttributes(t *task.Task) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(TaskIDKey, t.ID),
		attribute.String(TaskAppKey, t.AppName),
		attribute.String(TaskActionKey, t.Action),
	}
	if t.Args.AssetID != 0 {
		attrs = append(attrs, attribute.Int64(TaskAssetIDKey, t.Args.AssetID))
	}
	if t.Args.Catalog != "" {
		attrs = append(attrs, attribute.String(TaskCatalogKey, t.Args.Catalog))
	}
	return attrs
}

// OutcomeAttributes records how a settled task ended.
func OutcomeAttributes(t *task.Task) []attribute.KeyValue {
	if t.Result == nil {
		return nil
	}
	attrs := []attribute.KeyValue{
		attribute.Bool(TaskOutcomeKey, t.Succeeded()),
	}
	if !t.Succeeded() && t.Result.Kind != "" {
		attrs = append(attrs, attribute.String(TaskKindKey, t.Result.Kind))
	}
	return attrs
}

// StoreAttributes identifies a catalog store operation.
func StoreAttributes(catalogName string, replica bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(StoreCatalogKey, catalogName),
		attribute.Bool(StoreReplicaKey, replica),
	}
}
