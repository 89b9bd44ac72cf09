// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence ENV > File > Defaults.
type Loader struct {
	root            string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader rooted at the sonicat path.
func NewLoader(root string) *Loader {
	return &Loader{
		root:            root,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

// ConfigFile returns the canonical config file path under the root.
func (l *Loader) ConfigFile() string {
	return filepath.Join(l.root, "config", "config.yaml")
}

// SecretsFile returns the canonical secrets file path under the root.
func (l *Loader) SecretsFile() string {
	return filepath.Join(l.root, "config", "secrets.yaml")
}

// Load reads, merges, and validates the configuration. Strict order:
// defaults, strict file parse, env overrides, validation.
func (l *Loader) Load() (AppConfig, error) {
	cfg := AppConfig{}
	l.setDefaults(&cfg)

	abs, err := filepath.Abs(l.root)
	if err != nil {
		return cfg, fmt.Errorf("resolve sonicat path: %w", err)
	}
	cfg.Root = abs

	fileCfg, err := l.loadFile(l.ConfigFile())
	if err != nil {
		return cfg, fmt.Errorf("load config file: %w", err)
	}
	mergeFileConfig(&cfg, fileCfg)

	l.mergeEnvConfig(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (l *Loader) setDefaults(cfg *AppConfig) {
	cfg.LogLevel = "info"
	cfg.Tasks = TasksConfig{Threshold: 0, IdleSeconds: 30}
	cfg.Redis = RedisConfig{Addr: "localhost:6379"}
	cfg.Telemetry = TelemetryConfig{Exporter: "http", SamplingRate: 1.0}
}

func (l *Loader) loadFile(path string) (*FileConfig, error) {
	// #nosec G304 -- the config path is derived from the operator-provided root
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // Reject unknown fields

	if err := dec.Decode(&fileCfg); err != nil {
		if err == io.EOF {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	// Strict: Ensure no multiple documents or trailing content
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return &fileCfg, nil
}

func mergeFileConfig(cfg *AppConfig, file *FileConfig) {
	cfg.Catalogs = file.Catalogs
	cfg.Apps = file.Apps
	cfg.Blacklist = file.Blacklist
	cfg.Digests = file.Digests
	if file.LogLevel != "" {
		cfg.LogLevel = file.LogLevel
	}
	if file.Tasks.Threshold != 0 {
		cfg.Tasks.Threshold = file.Tasks.Threshold
	}
	if file.Tasks.IdleSeconds != 0 {
		cfg.Tasks.IdleSeconds = file.Tasks.IdleSeconds
	}
	if file.Redis.Addr != "" {
		cfg.Redis.Addr = file.Redis.Addr
	}
	cfg.Redis.Password = file.Redis.Password
	cfg.Redis.DB = file.Redis.DB
	cfg.Ops = file.Ops
	if file.Telemetry.Exporter != "" {
		cfg.Telemetry.Exporter = file.Telemetry.Exporter
	}
	cfg.Telemetry.Enabled = file.Telemetry.Enabled
	if file.Telemetry.Endpoint != "" {
		cfg.Telemetry.Endpoint = file.Telemetry.Endpoint
	}
	if file.Telemetry.SamplingRate != 0 {
		cfg.Telemetry.SamplingRate = file.Telemetry.SamplingRate
	}
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.LogLevel = l.envString("SONICAT_LOG_LEVEL", cfg.LogLevel)
	cfg.Redis.Addr = l.envString("SONICAT_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.DB = l.envInt("SONICAT_REDIS_DB", cfg.Redis.DB)
	cfg.Ops.Addr = l.envString("SONICAT_OPS_ADDR", cfg.Ops.Addr)
	cfg.Telemetry.Endpoint = l.envString("SONICAT_OTEL_ENDPOINT", cfg.Telemetry.Endpoint)
}
