// SPDX-License-Identifier: MIT

package intake

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jdswan/sonicat/internal/catalog"
	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/queue"
	"github.com/jdswan/sonicat/internal/task"
)

// stubMover applies file_mover effects inline so batch tests need no codec.
type stubMover struct {
	mu    sync.Mutex
	tasks []task.Task

	restore func(t *task.Task) error
}

func (m *stubMover) RunTask(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	m.tasks = append(m.tasks, *t)
	m.mu.Unlock()
	switch t.Action {
	case config.ActionArchive:
		if err := os.MkdirAll(filepath.Dir(t.Args.To), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(t.Args.To, []byte("rar"), 0o644); err != nil {
			return err
		}
		return os.RemoveAll(t.Args.From)
	case config.ActionRestore:
		if m.restore != nil {
			return m.restore(t)
		}
		return nil
	case config.ActionRemove:
		return os.RemoveAll(t.Args.DataPath)
	}
	return nil
}

func (m *stubMover) byAction(action string) []task.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []task.Task
	for _, t := range m.tasks {
		if t.Action == action {
			out = append(out, t)
		}
	}
	return out
}

func testClerk(t *testing.T) (*Clerk, *stubMover, *config.AppConfig) {
	t.Helper()
	root := t.TempDir()
	cfg := &config.AppConfig{
		Root: root,
		Catalogs: map[string]config.CatalogConfig{
			"main": {
				Moniker: "Main",
				Path: config.CatalogPaths{
					Managed: filepath.Join(root, "managed"),
					Intake:  filepath.Join(root, "intake"),
					Export:  filepath.Join(root, "export"),
				},
			},
		},
		Apps: map[string]map[string]config.AppEntry{
			config.TypeSystem: {
				config.AppCatalogIntake: {Moniker: "CI-" + filepath.Base(root)},
			},
		},
	}
	for _, dir := range []string{"managed", "intake", "export"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}
	mover := &stubMover{}
	clerk, err := New(cfg, mover)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = clerk.Close()
		_ = os.RemoveAll(clerk.scratchRoot())
	})
	return clerk, mover, cfg
}

func seedIntakeDir(t *testing.T, cfg *config.AppConfig, cname string, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(cfg.Catalogs["main"].Path.Intake, cname)
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func assetExists(t *testing.T, cfg *config.AppConfig, cname string) bool {
	t.Helper()
	store, err := catalog.Open(cfg.CatalogDBPath("main"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	exists, err := store.AssetExists(context.Background(), cname)
	require.NoError(t, err)
	return exists
}

func TestRunBatchCommitsAndArchives(t *testing.T) {
	clerk, mover, cfg := testClerk(t)
	good := seedIntakeDir(t, cfg, "Acme Sounds - Pack Vol 1", map[string]string{"kick.wav": "0123456789abcdefg"})
	seedIntakeDir(t, cfg, "badname", map[string]string{"x.wav": "x"})

	report, err := clerk.RunBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Committed)
	require.Len(t, report.Noncompliant, 1)
	require.Equal(t, "badname", report.Noncompliant[0].Cname)

	require.True(t, assetExists(t, cfg, "Acme Sounds - Pack Vol 1"))

	archives := mover.byAction(config.ActionArchive)
	require.Len(t, archives, 1)
	require.Equal(t, good, archives[0].Args.From)
	require.Equal(t,
		filepath.Join(cfg.Catalogs["main"].Path.Managed, "acme_sounds", "Acme Sounds - Pack Vol 1.rar"),
		archives[0].Args.To)
	require.NoDirExists(t, good, "archived source must be gone")
}

func TestRunBatchWritesNoncompliantListing(t *testing.T) {
	clerk, _, cfg := testClerk(t)
	seedIntakeDir(t, cfg, "not canonical at all", map[string]string{"x.wav": "x"})

	_, err := clerk.RunBatch(context.Background())
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(cfg.Catalogs["main"].Path.Export, NoncompliantFile))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, []string{"cname", "reason"}, rows[0])
	require.Equal(t, "not canonical at all", rows[1][0])
}

func TestRunTaskCommitsSurveyFile(t *testing.T) {
	clerk, _, cfg := testClerk(t)
	survey := task.Survey{
		"kick.wav": {Basename: "kick.wav", Size: 17, Filetype: "wav"},
	}
	raw, err := json.Marshal(survey)
	require.NoError(t, err)
	path := filepath.Join(cfg.Root, "Acme Sounds - Pack Vol 2.json")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	var m task.Maker
	tk := m.Make(config.AppCatalogIntake, config.ActionIntake, task.Args{Catalog: "main", DataPath: path})
	require.NoError(t, clerk.RunTask(context.Background(), &tk))
	require.True(t, assetExists(t, cfg, "Acme Sounds - Pack Vol 2"))
}

func TestRunTaskRejectsNonCanonicalSurveyName(t *testing.T) {
	clerk, _, cfg := testClerk(t)
	path := filepath.Join(cfg.Root, "badname.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"x.wav":{"basename":"x.wav","size":1}}`), 0o644))

	var m task.Maker
	tk := m.Make(config.AppCatalogIntake, config.ActionIntake, task.Args{Catalog: "main", DataPath: path})
	err := clerk.RunTask(context.Background(), &tk)
	require.Error(t, err)
	require.Equal(t, task.KindValidation, task.KindOf(err))
}

func TestRunTaskForeignPassThrough(t *testing.T) {
	clerk, _, _ := testClerk(t)
	var m task.Maker
	tk := m.Make(config.AppLibrosa, config.ActionBasic, task.Args{Catalog: "main", AssetID: 1})
	require.NoError(t, clerk.RunTask(context.Background(), &tk))
	require.Nil(t, tk.Result)
}

func TestSurveyBatchWritesJSON(t *testing.T) {
	clerk, mover, cfg := testClerk(t)
	archive := filepath.Join(cfg.Catalogs["main"].Path.Managed, "acme_sounds", "Acme Sounds - Pack Vol 1.rar")
	require.NoError(t, os.MkdirAll(filepath.Dir(archive), 0o755))
	require.NoError(t, os.WriteFile(archive, []byte("rar"), 0o644))

	mover.restore = func(t *task.Task) error {
		if err := os.MkdirAll(t.Args.To, 0o755); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(t.Args.To, "kick.wav"), []byte("0123456789abcdefg"), 0o644)
	}

	require.NoError(t, clerk.SurveyBatch(context.Background(), 2))

	raw, err := os.ReadFile(filepath.Join(cfg.Catalogs["main"].Path.Export, "surveys", "Acme Sounds - Pack Vol 1.json"))
	require.NoError(t, err)
	var survey task.Survey
	require.NoError(t, json.Unmarshal(raw, &survey))
	require.Contains(t, survey, "kick.wav")
	require.Equal(t, int64(17), survey["kick.wav"].Size)

	require.Len(t, mover.byAction(config.ActionRemove), 1, "scratch copy removed")
	require.NoDirExists(t, filepath.Join(clerk.scratchRoot(), "Acme Sounds - Pack Vol 1"))
}

type recordingFabric struct {
	mu   sync.Mutex
	sent map[string][]task.Task
}

func (f *recordingFabric) Enqueue(_ context.Context, target, queueName string, t *task.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = map[string][]task.Task{}
	}
	f.sent[target+"/"+queueName] = append(f.sent[target+"/"+queueName], *t)
	return nil
}

func (f *recordingFabric) commands() []task.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]task.Task(nil), f.sent[config.AppTasks+"/"+queue.Command]...)
}

func TestWatcherEmitsDebouncedIntakeCommand(t *testing.T) {
	_, _, cfg := testClerk(t)
	fabric := &recordingFabric{}
	w, err := NewWatcher(cfg, fabric)
	require.NoError(t, err)
	w.debounce = 30 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	dropped := filepath.Join(cfg.Catalogs["main"].Path.Intake, "Acme Sounds - Pack Vol 3")
	require.NoError(t, os.MkdirAll(dropped, 0o755))

	require.Eventually(t, func() bool {
		return len(fabric.commands()) == 1
	}, 2*time.Second, 20*time.Millisecond)

	got := fabric.commands()[0]
	require.Equal(t, config.AppCommandBridge, got.AppName)
	require.Equal(t, config.CmdIntake, got.Action)
	require.Equal(t, "main", got.Args.Catalog)
	require.Equal(t, "Acme Sounds - Pack Vol 3", got.Args.Cname)
	require.Equal(t, dropped, got.Args.DataPath)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
