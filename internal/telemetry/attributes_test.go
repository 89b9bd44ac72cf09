// SPDX-License-Identifier: MIT

package telemetry

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/task"
)

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTaskAttributes(t *testing.T) {
	var m task.Maker
	tk := m.Make(config.AppLibrosa, config.ActionBasic, task.Args{Catalog: "main", AssetID: 42})

	attrs := TaskAttributes(&tk)
	require.Len(t, attrs, 5)

	v, ok := attrValue(attrs, TaskAppKey)
	require.True(t, ok)
	require.Equal(t, config.AppLibrosa, v.AsString())

	v, ok = attrValue(attrs, TaskAssetIDKey)
	require.True(t, ok)
	require.Equal(t, int64(42), v.AsInt64())

	v, ok = attrValue(attrs, TaskCatalogKey)
	require.True(t, ok)
	require.Equal(t, "main", v.AsString())
}

func TestTaskAttributesOmitsEmptyArgs(t *testing.T) {
	var m task.Maker
	tk := m.Make(config.AppTasks, config.CmdMakeTasks, task.Args{})

	attrs := TaskAttributes(&tk)
	require.Len(t, attrs, 3)
	_, ok := attrValue(attrs, TaskAssetIDKey)
	require.False(t, ok)
	_, ok = attrValue(attrs, TaskCatalogKey)
	require.False(t, ok)
}

func TestOutcomeAttributes(t *testing.T) {
	var m task.Maker

	tk := m.Make(config.AppDiscogs, config.ActionSearch, task.Args{AssetID: 7})
	require.Nil(t, OutcomeAttributes(&tk), "unsettled task carries no outcome")

	tk.Complete()
	attrs := OutcomeAttributes(&tk)
	v, ok := attrValue(attrs, TaskOutcomeKey)
	require.True(t, ok)
	require.True(t, v.AsBool())

	failed := m.Make(config.AppDiscogs, config.ActionSearch, task.Args{AssetID: 8})
	failed.Fail(task.Validation("no results"))
	attrs = OutcomeAttributes(&failed)
	v, ok = attrValue(attrs, TaskOutcomeKey)
	require.True(t, ok)
	require.False(t, v.AsBool())
	v, ok = attrValue(attrs, TaskKindKey)
	require.True(t, ok)
	require.Equal(t, task.KindValidation, v.AsString())
}

func TestStoreAttributes(t *testing.T) {
	attrs := StoreAttributes("main", true)
	require.Len(t, attrs, 2)
	v, ok := attrValue(attrs, StoreReplicaKey)
	require.True(t, ok)
	require.True(t, v.AsBool())
}
