// SPDX-License-Identifier: MIT

package config

import (
	"sort"
)

// App type names. The type decides where an app's derived data lives
// (data/<type>) and which routing family it belongs to.
const (
	TypeSystem   = "system"
	TypeAnalysis = "analysis"
	TypeMetadata = "metadata"
	TypeTokens   = "tokens"
)

// Well-known app names on the task fabric. AppCommandBridge is not a
// worker: it marks control-plane tasks injected by the CLI or forwarded
// between roles.
const (
	AppTasks         = "tasks"
	AppFileMover     = "file_mover"
	AppInventory     = "inventory"
	AppAppData       = "app_data"
	AppCatalogIntake = "catalog_intake"
	AppLibrosa       = "librosa"
	AppCueParser     = "cue_parser"
	AppPathParser    = "path_parser"
	AppDiscogs       = "discogs"
	AppLastfm        = "lastfm"
	AppRutracker     = "rutracker_scraper"

	AppCommandBridge = "command_bridge"
)

// Worker actions.
const (
	ActionMove      = "move"
	ActionRemove    = "remove"
	ActionArchive   = "archive"
	ActionRestore   = "restore"
	ActionInventory = "inventory"
	ActionIntake    = "intake"
	ActionBasic     = "basic"
	ActionParse     = "parse"
	ActionSearch    = "search"
)

// Command-bridge actions.
const (
	CmdMakeTasks      = "make_tasks"
	CmdReclaimOrphans = "reclaim_orphans"
	CmdExportReplicas = "export_replicas"
	CmdPurgeFailed    = "purge_failed"
	CmdIntake         = "intake"
)

// CatalogPaths are the filesystem roots of one catalog.
type CatalogPaths struct {
	Managed string `yaml:"managed"`
	Intake  string `yaml:"intake,omitempty"`
	Export  string `yaml:"export,omitempty"`
}

// TaskSpec enables an app's actions for a catalog.
type TaskSpec struct {
	Actions []string `yaml:"actions"`
}

// CatalogConfig describes one curated catalog.
type CatalogConfig struct {
	Moniker  string                         `yaml:"moniker"`
	LogLevel string                         `yaml:"log_level,omitempty"`
	Path     CatalogPaths                   `yaml:"path"`
	Tasks    map[string]map[string]TaskSpec `yaml:"tasks,omitempty"` // type -> app -> spec
}

// AppEntry describes one worker app.
type AppEntry struct {
	Moniker  string `yaml:"moniker"`
	LogLevel string `yaml:"log_level,omitempty"`
}

// TasksConfig carries scheduler options.
type TasksConfig struct {
	Threshold   int `yaml:"threshold,omitempty"`    // max tasks per make_tasks cycle, 0 = unbounded
	IdleSeconds int `yaml:"idle_seconds,omitempty"` // sleep when a cycle finds no work
}

// RedisConfig locates the queue broker.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// OpsConfig controls the operator HTTP surface. An empty Addr disables it.
type OpsConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// TelemetryConfig controls trace export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled,omitempty"`
	Exporter     string  `yaml:"exporter,omitempty"` // "grpc" or "http"
	Endpoint     string  `yaml:"endpoint,omitempty"`
	SamplingRate float64 `yaml:"sampling_rate,omitempty"`
}

// FileConfig mirrors the YAML document.
type FileConfig struct {
	Catalogs  map[string]CatalogConfig        `yaml:"catalogs"`
	Apps      map[string]map[string]AppEntry  `yaml:"apps"` // type -> name -> entry
	Tasks     TasksConfig                     `yaml:"tasks,omitempty"`
	LogLevel  string                          `yaml:"log_level,omitempty"`
	Redis     RedisConfig                     `yaml:"redis,omitempty"`
	Ops       OpsConfig                       `yaml:"ops,omitempty"`
	Telemetry TelemetryConfig                 `yaml:"telemetry,omitempty"`
	Blacklist string                          `yaml:"blacklist,omitempty"` // survey blacklist file, relative to root
	Digests   bool                            `yaml:"digests,omitempty"`   // compute file digests during inventory
}

// AppConfig is the resolved configuration consumed by every process.
type AppConfig struct {
	Root string // absolute sonicat path

	Catalogs  map[string]CatalogConfig
	Apps      map[string]map[string]AppEntry
	Tasks     TasksConfig
	LogLevel  string
	Redis     RedisConfig
	Ops       OpsConfig
	Telemetry TelemetryConfig
	Blacklist string
	Digests   bool
}

// CatalogNames returns the configured catalog names, sorted.
func (c *AppConfig) CatalogNames() []string {
	names := make([]string, 0, len(c.Catalogs))
	for name := range c.Catalogs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AppNames returns all configured app names across types, sorted.
func (c *AppConfig) AppNames() []string {
	var names []string
	for _, apps := range c.Apps {
		for name := range apps {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// TypeOfApp returns the type under which the app is configured, or "".
func (c *AppConfig) TypeOfApp(app string) string {
	for appType, apps := range c.Apps {
		if _, ok := apps[app]; ok {
			return appType
		}
	}
	return ""
}

// AppMoniker returns the app's CamelCase moniker, or "".
func (c *AppConfig) AppMoniker(app string) string {
	for _, apps := range c.Apps {
		if entry, ok := apps[app]; ok {
			return entry.Moniker
		}
	}
	return ""
}

// CatalogMoniker returns the catalog's moniker, or "".
func (c *AppConfig) CatalogMoniker(catalog string) string {
	if entry, ok := c.Catalogs[catalog]; ok {
		return entry.Moniker
	}
	return ""
}

// EnabledActions returns app -> actions enabled for the catalog, flattened
// across task types. Iteration-stable: apps sorted by name.
func (c *AppConfig) EnabledActions(catalog string) []AppActions {
	entry, ok := c.Catalogs[catalog]
	if !ok {
		return nil
	}
	byApp := map[string][]string{}
	for _, apps := range entry.Tasks {
		for app, spec := range apps {
			byApp[app] = append(byApp[app], spec.Actions...)
		}
	}
	names := make([]string, 0, len(byApp))
	for app := range byApp {
		names = append(names, app)
	}
	sort.Strings(names)
	out := make([]AppActions, 0, len(names))
	for _, app := range names {
		out = append(out, AppActions{App: app, Actions: byApp[app]})
	}
	return out
}

// AppActions pairs an app with its enabled actions for one catalog.
type AppActions struct {
	App     string
	Actions []string
}
