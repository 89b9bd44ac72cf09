// SPDX-License-Identifier: MIT

// Package log provides structured logging utilities.
package log

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	taskIDKey  ctxKey = "task_id"
	assetIDKey ctxKey = "asset_id"
	catalogKey ctxKey = "catalog"
)

// ContextWithTaskID stores the provided task ID in the context.
func ContextWithTaskID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, taskIDKey, id)
}

// ContextWithAssetID stores the provided asset ID in the context.
func ContextWithAssetID(ctx context.Context, id int64) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, assetIDKey, id)
}

// ContextWithCatalog stores the provided catalog name in the context.
func ContextWithCatalog(ctx context.Context, catalog string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, catalogKey, catalog)
}

// TaskIDFromContext extracts the task ID from context if present.
func TaskIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(taskIDKey).(string); ok {
		return v
	}
	return ""
}

// AssetIDFromContext extracts the asset ID from context if present.
func AssetIDFromContext(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	if v, ok := ctx.Value(assetIDKey).(int64); ok {
		return v
	}
	return 0
}

// CatalogFromContext extracts the catalog name from context if present.
func CatalogFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(catalogKey).(string); ok {
		return v
	}
	return ""
}

// WithContext enriches the supplied logger with correlation fields from context.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	builder := logger.With()
	added := false
	if tid := TaskIDFromContext(ctx); tid != "" {
		builder = builder.Str(FieldTaskID, tid)
		added = true
	}
	if aid := AssetIDFromContext(ctx); aid != 0 {
		builder = builder.Str(FieldAssetID, strconv.FormatInt(aid, 10))
		added = true
	}
	if cat := CatalogFromContext(ctx); cat != "" {
		builder = builder.Str(FieldCatalog, cat)
		added = true
	}
	if !added {
		return logger
	}
	return builder.Logger()
}

// WithComponentFromContext returns a logger that is annotated with the component
// name and enriched with correlation fields from ctx.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	return WithContext(ctx, WithComponent(component))
}
