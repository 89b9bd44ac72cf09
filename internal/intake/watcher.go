// SPDX-License-Identifier: MIT

package intake

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/queue"
	"github.com/jdswan/sonicat/internal/task"
)

const defaultDebounce = 2 * time.Second

// Fabric is the slice of the queue broker the watcher emits on.
type Fabric interface {
	Enqueue(ctx context.Context, target, queueName string, t *task.Task) error
}

// Watcher observes the catalogs' intake directories and turns a newly
// dropped asset directory into an intake command on the scheduler's command
// queue. Emission is debounced so an unpacking copy settles before the
// survey chain starts.
type Watcher struct {
	cfg      *config.AppConfig
	fabric   Fabric
	maker    task.Maker
	fsw      *fsnotify.Watcher
	catalogs map[string]string // intake root -> catalog name
	debounce time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer

	logger zerolog.Logger
}

// NewWatcher registers every configured intake root. Catalogs without an
// intake path are skipped.
func NewWatcher(cfg *config.AppConfig, fabric Fabric) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		cfg:      cfg,
		fabric:   fabric,
		fsw:      fsw,
		catalogs: make(map[string]string),
		debounce: defaultDebounce,
		timers:   make(map[string]*time.Timer),
		logger:   log.WithComponent("intake_watcher"),
	}
	for _, catalogName := range cfg.CatalogNames() {
		root := cfg.Catalogs[catalogName].Path.Intake
		if root == "" {
			continue
		}
		if err := fsw.Add(root); err != nil {
			_ = fsw.Close()
			return nil, err
		}
		w.catalogs[filepath.Clean(root)] = catalogName
	}
	return w, nil
}

// Run pumps filesystem events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stopTimers()
	defer func() { _ = w.fsw.Close() }()
	w.logger.Info().
		Str(log.FieldEvent, "watcher.started").
		Int("roots", len(w.catalogs)).
		Msg("intake watcher up")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).
				Str(log.FieldEvent, "watcher.error").
				Msg("watch error")
		}
	}
}

// handle debounces creations of directories directly under an intake root.
// Every further event on the same path pushes the emission out again.
func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	catalogName, ok := w.catalogs[filepath.Clean(filepath.Dir(ev.Name))]
	if !ok {
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil || !info.IsDir() {
		return
	}
	path := ev.Name
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.timers[path]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.emit(ctx, catalogName, path)
	})
}

func (w *Watcher) emit(ctx context.Context, catalogName, path string) {
	w.mu.Lock()
	delete(w.timers, path)
	w.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	cname := filepath.Base(path)
	t := w.maker.Make(config.AppCommandBridge, config.CmdIntake, task.Args{
		Catalog:  catalogName,
		Cname:    cname,
		DataPath: path,
	})
	if err := w.fabric.Enqueue(ctx, config.AppTasks, queue.Command, &t); err != nil {
		w.logger.Error().Err(err).
			Str(log.FieldEvent, "watcher.enqueue_failed").
			Str(log.FieldCname, cname).
			Msg("intake command not enqueued")
		return
	}
	w.logger.Info().
		Str(log.FieldEvent, "watcher.intake_emitted").
		Str(log.FieldCatalog, catalogName).
		Str(log.FieldCname, cname).
		Str(log.FieldPath, path).
		Msg("intake command enqueued")
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
}
