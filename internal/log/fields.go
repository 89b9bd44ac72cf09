// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldTaskID   = "task_id"
	FieldAssetID  = "asset_id"
	FieldCatalog  = "catalog"
	FieldCname    = "cname"
	FieldRunnerID = "runner_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldApp       = "app"
	FieldAction    = "action"
	FieldQueue     = "queue"
	FieldTarget    = "target"

	// Filesystem fields
	FieldPath    = "path"
	FieldArchive = "archive"
	FieldBytes   = "bytes"

	// Store fields
	FieldStore   = "store"
	FieldReplica = "replica"
)
