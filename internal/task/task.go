// SPDX-License-Identifier: MIT

// Package task defines the Task message exchanged between the scheduler and
// the workers, together with the argument and result payload types that
// cross the queue fabric. A Task is immutable after emission except for
// appended results and the final outcome.
package task

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Payload type names carried in Result envelopes.
const (
	PayloadAssetData = "asset_data"
	PayloadFileData  = "file_data"
	PayloadAnalysis  = "analysis_data"
	PayloadParse     = "parse_data"
	PayloadCue       = "cue_data"
	PayloadMetadata  = "metadata_result"
	PayloadPages     = "page_result"
)

// FileData is one catalog file row as carried in task arguments and survey
// payloads. Dirname is relative to the asset root with no leading slash;
// Filetype is empty when the basename carries no meaningful extension.
type FileData struct {
	ID       int64  `json:"id,omitempty"`
	Basename string `json:"basename"`
	Dirname  string `json:"dirname"`
	Size     int64  `json:"size"`
	Filetype string `json:"filetype,omitempty"`
	Digest   string `json:"digest,omitempty"`
}

// FilePath pairs a catalog file id with its path relative to the asset root.
type FilePath struct {
	ID   int64  `json:"id"`
	Path string `json:"path"`
}

// TrackDuration pairs a catalog file with its measured length in seconds,
// in track order.
type TrackDuration struct {
	FileID   int64   `json:"file_id"`
	Duration float64 `json:"duration"`
}

// AssetData identifies the asset a survey belongs to.
type AssetData struct {
	Label   string `json:"label"`
	Cname   string `json:"cname"`
	Managed int    `json:"managed"`
}

// Survey is the inventory output: file records keyed by
// "<dirname>/<basename>".
type Survey map[string]FileData

// Args carries the task's input parameters. The field set is the union over
// all worker actions; zero values are omitted on the wire.
type Args struct {
	Catalog  string `json:"catalog,omitempty"`
	AssetID  int64  `json:"asset_id,omitempty"`
	Cname    string `json:"cname,omitempty"`
	DataPath string `json:"data_path,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`

	FileData  []FileData      `json:"file_data,omitempty"`
	FilePaths []FilePath      `json:"file_paths,omitempty"`
	Tracks    []TrackDuration `json:"tracks,omitempty"`

	// Command-bridge parameters.
	Catalogs  []string `json:"catalogs,omitempty"`
	Threshold int      `json:"threshold,omitempty"`
	App       string   `json:"app,omitempty"`
	AssetIDs  []int64  `json:"asset_ids,omitempty"`
}

// Result is one output payload appended by a worker.
type Result struct {
	Type    string          `json:"payload_type"`
	Payload json.RawMessage `json:"payload"`
}

// Outcome is the terminal disposition of a task. Kind distinguishes
// validation failures from external ones; both are routed, never thrown.
type Outcome struct {
	Success bool   `json:"success"`
	Kind    string `json:"kind,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Task is the unit of work. ID is the decimal count of 10^-7 second
// intervals since the epoch at emission time.
type Task struct {
	ID      string   `json:"id"`
	AppName string   `json:"app_name"`
	Action  string   `json:"action"`
	Args    Args     `json:"args"`
	Results []Result `json:"results"`
	Result  *Outcome `json:"result,omitempty"`
}

// AttachResult appends a typed payload to the task's results.
func (t *Task) AttachResult(payloadType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("task: encode %s payload: %w", payloadType, err)
	}
	t.Results = append(t.Results, Result{Type: payloadType, Payload: raw})
	return nil
}

// ResultPayload decodes the first result of the given payload type into dst.
func (t *Task) ResultPayload(payloadType string, dst any) error {
	for _, r := range t.Results {
		if r.Type == payloadType {
			if err := json.Unmarshal(r.Payload, dst); err != nil {
				return fmt.Errorf("task: decode %s payload: %w", payloadType, err)
			}
			return nil
		}
	}
	return fmt.Errorf("task %s: no %s payload", t.ID, payloadType)
}

// Complete marks the task successful.
func (t *Task) Complete() {
	t.Result = &Outcome{Success: true}
}

// Fail marks the task failed with the error's failure kind.
func (t *Task) Fail(err error) {
	t.Result = &Outcome{Success: false, Kind: KindOf(err), Error: err.Error()}
}

// Succeeded reports whether the task carries a successful outcome.
func (t *Task) Succeeded() bool {
	return t.Result != nil && t.Result.Success
}

// Marshal encodes the task for the queue fabric.
func (t *Task) Marshal() ([]byte, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("task: encode: %w", err)
	}
	return raw, nil
}

// Unmarshal decodes a task from its wire form.
func Unmarshal(raw []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("task: decode: %w", err)
	}
	if t.ID == "" || t.AppName == "" {
		return nil, fmt.Errorf("task: decode: missing id or app_name")
	}
	return &t, nil
}

// Maker issues tasks with process-monotonic ids. Two tasks made within the
// same 100 ns tick still receive distinct, ordered ids.
type Maker struct {
	mu   sync.Mutex
	last int64
}

// ID returns the next task id.
func (m *Maker) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UnixNano() / 100
	if now <= m.last {
		now = m.last + 1
	}
	m.last = now
	return strconv.FormatInt(now, 10)
}

// Make builds a new task for the named app and action.
func (m *Maker) Make(appName, action string, args Args) Task {
	return Task{
		ID:      m.ID(),
		AppName: appName,
		Action:  action,
		Args:    args,
		Results: []Result{},
	}
}
