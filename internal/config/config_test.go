// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleConfig = `
catalogs:
  main:
    moniker: Main
    log_level: debug
    path:
      managed: /srv/audio/managed
      intake: /srv/audio/intake
      export: /srv/audio/export
    tasks:
      analysis:
        librosa:
          actions: [basic]
      tokens:
        path_parser:
          actions: [parse]
      metadata:
        discogs:
          actions: [search]
apps:
  system:
    tasks: {moniker: Tasks}
    file_mover: {moniker: FileMover}
    inventory: {moniker: Inventory}
    app_data: {moniker: AppData}
    catalog_intake: {moniker: CatalogIntake}
  analysis:
    librosa: {moniker: Librosa}
  tokens:
    path_parser: {moniker: PathParser}
  metadata:
    discogs: {moniker: Discogs}
    lastfm: {moniker: Lastfm}
tasks:
  threshold: 8
  idle_seconds: 15
redis:
  addr: localhost:6390
ops:
  addr: 127.0.0.1:8787
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "config")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestLoad(t *testing.T) {
	root := writeConfig(t, sampleConfig)
	cfg, err := NewLoader(root).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := cfg.CatalogNames(); len(got) != 1 || got[0] != "main" {
		t.Errorf("CatalogNames = %v", got)
	}
	if cfg.Tasks.Threshold != 8 || cfg.Tasks.IdleSeconds != 15 {
		t.Errorf("tasks config = %+v", cfg.Tasks)
	}
	if cfg.Redis.Addr != "localhost:6390" {
		t.Errorf("redis addr = %s", cfg.Redis.Addr)
	}
	if got := cfg.TypeOfApp("librosa"); got != TypeAnalysis {
		t.Errorf("TypeOfApp(librosa) = %q", got)
	}
	if got := cfg.TypeOfApp("nope"); got != "" {
		t.Errorf("TypeOfApp(nope) = %q", got)
	}
	if got := cfg.AppMoniker("file_mover"); got != "FileMover" {
		t.Errorf("AppMoniker(file_mover) = %q", got)
	}
	if !filepath.IsAbs(cfg.Root) {
		t.Errorf("root not absolute: %s", cfg.Root)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	root := writeConfig(t, sampleConfig+"\nsurprise: true\n")
	_, err := NewLoader(root).Load()
	if err == nil {
		t.Fatal("expected strict parse error")
	}
	if !errors.Is(err, ErrUnknownConfigField) {
		t.Errorf("error not classified as unknown field: %v", err)
	}
}

func TestLoadRejectsMultipleDocuments(t *testing.T) {
	root := writeConfig(t, sampleConfig+"\n---\napps: {}\n")
	if _, err := NewLoader(root).Load(); err == nil {
		t.Fatal("expected multi-document rejection")
	}
}

func TestEnvOverrides(t *testing.T) {
	root := writeConfig(t, sampleConfig)
	t.Setenv("SONICAT_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("SONICAT_LOG_LEVEL", "warn")

	loader := NewLoader(root)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Redis.Addr != "redis.internal:6379" {
		t.Errorf("env override lost: %s", cfg.Redis.Addr)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("log level override lost: %s", cfg.LogLevel)
	}
	if _, ok := loader.ConsumedEnvKeys["SONICAT_REDIS_ADDR"]; !ok {
		t.Error("consumed env key not recorded")
	}
}

func TestValidateFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate string
	}{
		{"unknown scheduled app", `
catalogs:
  main:
    moniker: Main
    path: {managed: /srv/m}
    tasks:
      analysis:
        ghost: {actions: [basic]}
apps:
  system:
    tasks: {moniker: Tasks}
`},
		{"missing moniker", `
catalogs:
  main:
    moniker: Main
    path: {managed: /srv/m}
apps:
  system:
    tasks: {moniker: ""}
`},
		{"duplicate monikers", `
catalogs:
  main:
    moniker: Tasks
    path: {managed: /srv/m}
apps:
  system:
    tasks: {moniker: Tasks}
`},
		{"missing managed path", `
catalogs:
  main:
    moniker: Main
    path: {intake: /srv/i}
apps:
  system:
    tasks: {moniker: Tasks}
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			root := writeConfig(t, tc.mutate)
			_, err := NewLoader(root).Load()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error not classified: %v", err)
			}
		})
	}
}

func TestEnabledActions(t *testing.T) {
	root := writeConfig(t, sampleConfig)
	cfg, err := NewLoader(root).Load()
	if err != nil {
		t.Fatal(err)
	}
	got := cfg.EnabledActions("main")
	want := []AppActions{
		{App: "discogs", Actions: []string{"search"}},
		{App: "librosa", Actions: []string{"basic"}},
		{App: "path_parser", Actions: []string{"parse"}},
	}
	if len(got) != len(want) {
		t.Fatalf("EnabledActions = %+v", got)
	}
	for i := range want {
		if got[i].App != want[i].App || len(got[i].Actions) != len(want[i].Actions) || got[i].Actions[0] != want[i].Actions[0] {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if cfg.EnabledActions("ghost") != nil {
		t.Error("unknown catalog must yield nil")
	}
}

func TestPaths(t *testing.T) {
	cfg := AppConfig{
		Root: "/srv/sonicat",
		Catalogs: map[string]CatalogConfig{
			"main": {Moniker: "Main", Path: CatalogPaths{Managed: "/srv/audio/managed"}},
		},
		Apps: map[string]map[string]AppEntry{
			TypeAnalysis: {"librosa": {Moniker: "Librosa"}},
		},
	}

	if got := cfg.CatalogDBPath("main"); got != "/srv/sonicat/data/catalog/Main.sqlite" {
		t.Errorf("CatalogDBPath = %s", got)
	}
	if got := cfg.AppDBPath("librosa"); got != "/srv/sonicat/data/analysis/Librosa.sqlite" {
		t.Errorf("AppDBPath = %s", got)
	}
	if got := ReplicaPath(cfg.CatalogDBPath("main")); got != "/srv/sonicat/data/catalog/Main-ReadReplica.sqlite" {
		t.Errorf("ReplicaPath = %s", got)
	}
	if got := cfg.TempPath("Librosa"); got != "/tmp/sonicat-Librosa" {
		t.Errorf("TempPath = %s", got)
	}
	if got := cfg.Catalogs["main"].ArchivePath("acme_sounds", "Acme Sounds - Pack Vol 1"); got != "/srv/audio/managed/acme_sounds/Acme Sounds - Pack Vol 1.rar" {
		t.Errorf("ArchivePath = %s", got)
	}
}

func TestLoadSecrets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.yaml")
	body := `
discogs:
  user_agent: SonicatBot/1.0
  token: abc123
lastfm:
  user_agent: SonicatBot/1.0
  api_key: key
  shared_secret: shh
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := LoadSecrets(path)
	if err != nil {
		t.Fatalf("LoadSecrets: %v", err)
	}
	if s.Discogs.Token != "abc123" || s.Lastfm.APIKey != "key" {
		t.Errorf("secrets = %+v", s)
	}

	// Missing file: empty secrets, no error.
	s2, err := LoadSecrets(filepath.Join(dir, "absent.yaml"))
	if err != nil {
		t.Fatalf("missing secrets file must not error: %v", err)
	}
	if s2.Discogs.Token != "" {
		t.Errorf("expected empty secrets, got %+v", s2)
	}
}
