// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
)

// Validate checks semantic invariants after merge. Violations are fatal at
// startup: a half-valid config silently drops scheduled work.
func Validate(cfg AppConfig) error {
	if len(cfg.Apps) == 0 {
		return fmt.Errorf("%w: no apps configured", ErrInvalidConfig)
	}

	monikers := map[string]string{}
	for appType, apps := range cfg.Apps {
		for name, entry := range apps {
			if entry.Moniker == "" {
				return fmt.Errorf("%w: app %s.%s has no moniker", ErrInvalidConfig, appType, name)
			}
			if prev, dup := monikers[entry.Moniker]; dup {
				return fmt.Errorf("%w: moniker %q shared by %s and %s", ErrInvalidConfig, entry.Moniker, prev, name)
			}
			monikers[entry.Moniker] = name
		}
	}

	for name, cat := range cfg.Catalogs {
		if cat.Moniker == "" {
			return fmt.Errorf("%w: catalog %s has no moniker", ErrInvalidConfig, name)
		}
		if prev, dup := monikers[cat.Moniker]; dup {
			return fmt.Errorf("%w: moniker %q shared by %s and catalog %s", ErrInvalidConfig, cat.Moniker, prev, name)
		}
		monikers[cat.Moniker] = name
		if cat.Path.Managed == "" {
			return fmt.Errorf("%w: catalog %s has no managed path", ErrInvalidConfig, name)
		}
		for taskType, apps := range cat.Tasks {
			for app, spec := range apps {
				if cfg.TypeOfApp(app) == "" {
					return fmt.Errorf("%w: catalog %s schedules unknown app %q", ErrInvalidConfig, name, app)
				}
				if len(spec.Actions) == 0 {
					return fmt.Errorf("%w: catalog %s schedules %s.%s with no actions", ErrInvalidConfig, name, taskType, app)
				}
			}
		}
	}

	if cfg.Tasks.Threshold < 0 {
		return fmt.Errorf("%w: tasks.threshold must be >= 0", ErrInvalidConfig)
	}
	if cfg.Tasks.IdleSeconds <= 0 {
		return fmt.Errorf("%w: tasks.idle_seconds must be > 0", ErrInvalidConfig)
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("%w: redis.addr is required", ErrInvalidConfig)
	}
	switch cfg.Telemetry.Exporter {
	case "", "grpc", "http":
	default:
		return fmt.Errorf("%w: telemetry.exporter must be grpc or http", ErrInvalidConfig)
	}
	return nil
}
