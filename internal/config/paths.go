// SPDX-License-Identifier: MIT

package config

import (
	"path/filepath"
	"strings"
)

// Filesystem layout, all rooted at the sonicat path:
//
//	data/<type>/<Moniker>.sqlite    derived-data stores
//	data/catalog/<Moniker>.sqlite   catalog stores
//	log/<type>/YYYY-MM-DD-<Moniker>.log
//	/tmp/sonicat-<Moniker>          per-role scratch
//
// Read replicas sit beside their source store with a -ReadReplica suffix.

const replicaSuffix = "-ReadReplica.sqlite"

// DataRoot returns the root of the data tree. Artifact paths recorded in
// stores are relative to it.
func (c *AppConfig) DataRoot() string {
	return filepath.Join(c.Root, "data")
}

// DataPath returns the data directory for an app type.
func (c *AppConfig) DataPath(appType string) string {
	return filepath.Join(c.Root, "data", appType)
}

// LogPath returns the log directory for an app type.
func (c *AppConfig) LogPath(appType string) string {
	return filepath.Join(c.Root, "log", appType)
}

// TempPath returns the scratch directory for a moniker.
func (c *AppConfig) TempPath(moniker string) string {
	return filepath.Join("/tmp", "sonicat-"+moniker)
}

// CatalogDBPath returns the live catalog store path for a catalog.
func (c *AppConfig) CatalogDBPath(catalog string) string {
	return filepath.Join(c.Root, "data", "catalog", c.CatalogMoniker(catalog)+".sqlite")
}

// AppDBPath returns the live derived-data store path for an app.
func (c *AppConfig) AppDBPath(app string) string {
	return filepath.Join(c.DataPath(c.TypeOfApp(app)), c.AppMoniker(app)+".sqlite")
}

// ReplicaPath returns the read-replica path for a store path.
func ReplicaPath(dbPath string) string {
	return strings.TrimSuffix(dbPath, ".sqlite") + replicaSuffix
}

// IsReplicaPath reports whether the path names a read replica.
func IsReplicaPath(dbPath string) bool {
	return strings.HasSuffix(dbPath, replicaSuffix)
}

// PendingPath returns the scheduler's continuation-cache directory.
func (c *AppConfig) PendingPath() string {
	return filepath.Join(c.Root, "data", "pending")
}

// HarmonicDBPath returns the harmonic-distance store path. The store is
// batch-written and not tied to a configured app, so its name is fixed.
func (c *AppConfig) HarmonicDBPath() string {
	return filepath.Join(c.DataPath(TypeAnalysis), "Harmonic.sqlite")
}

// FeaturesPath returns the artifact tree for bulky analysis outputs.
func (c *AppConfig) FeaturesPath() string {
	return filepath.Join(c.DataPath(TypeAnalysis), "features")
}

// BlacklistPath returns the survey blacklist file path, or "" when unset.
func (c *AppConfig) BlacklistPath() string {
	if c.Blacklist == "" {
		return ""
	}
	if filepath.IsAbs(c.Blacklist) {
		return c.Blacklist
	}
	return filepath.Join(c.Root, c.Blacklist)
}

// ArchivePath returns the managed archive location for a cname.
func (entry CatalogConfig) ArchivePath(labelDir, cname string) string {
	return filepath.Join(entry.Path.Managed, labelDir, cname+".rar")
}
