// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/jdswan/sonicat/internal/analysis"
	"github.com/jdswan/sonicat/internal/appdata"
	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/cueparse"
	"github.com/jdswan/sonicat/internal/filemover"
	"github.com/jdswan/sonicat/internal/intake"
	"github.com/jdswan/sonicat/internal/inventory"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/metadata"
	"github.com/jdswan/sonicat/internal/ops"
	"github.com/jdswan/sonicat/internal/pathparse"
	"github.com/jdswan/sonicat/internal/pending"
	"github.com/jdswan/sonicat/internal/queue"
	"github.com/jdswan/sonicat/internal/runner"
	"github.com/jdswan/sonicat/internal/scheduler"
	"github.com/jdswan/sonicat/internal/scrape"
	"github.com/jdswan/sonicat/internal/telemetry"
	"github.com/jdswan/sonicat/internal/version"
	"github.com/jdswan/sonicat/internal/worker"
)

// runRun hosts the scheduler and/or workers until a signal arrives. With
// --role all, every configured role shares one process and one broker
// connection; a single-role invocation is what a per-role deployment runs.
func runRun(cfg *config.AppConfig, args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	role := fs.String("role", "all", `role to host: "tasks", a worker app, or "all"`)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	roles, err := resolveRoles(cfg, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sonicat: %v\n", err)
		return 2
	}

	configureLogging(cfg, roleLogType(cfg, *role), roleMoniker(cfg, *role))
	logger := log.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.NewProvider(ctx, telemetry.FromApp(cfg, *role, version.Version))
	if err != nil {
		logger.Error().Err(err).Msg("telemetry setup failed")
		return 1
	}
	defer func() {
		_ = provider.Shutdown(context.Background())
	}()

	broker, err := queue.Connect(ctx, queue.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Error().Err(err).Msg("broker unavailable")
		return 1
	}
	defer func() {
		_ = broker.Close()
	}()

	secrets, err := config.LoadSecrets(config.NewLoader(cfg.Root).SecretsFile())
	if err != nil {
		logger.Error().Err(err).Msg("secrets unreadable")
		return 1
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, r := range roles {
		if r == config.AppTasks {
			cache, err := pending.Open(cfg.PendingPath())
			if err != nil {
				logger.Error().Err(err).Msg("pending cache unavailable")
				return 1
			}
			defer func() {
				_ = cache.Close()
			}()
			sched := scheduler.New(cfg, broker, cache)
			g.Go(func() error { return sched.Run(ctx) })
			continue
		}
		w, cleanup, err := buildWorker(cfg, secrets, r)
		if err != nil {
			logger.Error().Err(err).Str(log.FieldApp, r).Msg("worker setup failed")
			return 1
		}
		if cleanup != nil {
			defer cleanup()
		}
		host := runner.New(cfg, broker, w)
		g.Go(func() error { return host.Run(ctx) })
	}

	if cfg.Ops.Addr != "" {
		srv := ops.New(cfg, broker)
		g.Go(func() error { return srv.Run(ctx) })
	}
	if hostsRole(roles, config.AppCatalogIntake) && anyIntakeRoot(cfg) {
		watcher, err := intake.NewWatcher(cfg, broker)
		if err != nil {
			logger.Error().Err(err).Msg("intake watcher setup failed")
			return 1
		}
		g.Go(func() error { return watcher.Run(ctx) })
	}

	logger.Info().
		Str(log.FieldEvent, "main.running").
		Strs("roles", roles).
		Str("version", version.String()).
		Msg("running")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("run ended with error")
		return 1
	}
	logger.Info().Str(log.FieldEvent, "main.stopped").Msg("stopped")
	return 0
}

// resolveRoles expands --role into the list of roles this process hosts.
func resolveRoles(cfg *config.AppConfig, role string) ([]string, error) {
	if role == "all" {
		return append([]string{config.AppTasks}, cfg.AppNames()...), nil
	}
	if role == config.AppTasks {
		return []string{config.AppTasks}, nil
	}
	for _, app := range cfg.AppNames() {
		if app == role {
			return []string{role}, nil
		}
	}
	return nil, fmt.Errorf("unknown role %q: not %q and not a configured app", role, config.AppTasks)
}

// buildWorker constructs the app implementation for one role. The second
// return is the worker's teardown, nil when it holds no resources.
func buildWorker(cfg *config.AppConfig, secrets config.Secrets, app string) (worker.Worker, func(), error) {
	switch app {
	case config.AppFileMover:
		return filemover.New(cfg), nil, nil
	case config.AppInventory:
		s, err := inventory.New(cfg)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.AppAppData:
		f, err := appdata.NewFunnel(cfg)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	case config.AppCatalogIntake:
		c, err := intake.New(cfg, filemover.New(cfg))
		if err != nil {
			return nil, nil, err
		}
		return c, func() { _ = c.Close() }, nil
	case config.AppLibrosa:
		return analysis.New(cfg), nil, nil
	case config.AppCueParser:
		return cueparse.NewParser(), nil, nil
	case config.AppPathParser:
		return pathparse.NewTokenizer(), nil, nil
	case config.AppDiscogs:
		d, err := metadata.NewDiscogs(metadata.DiscogsBaseURL, secrets.Discogs)
		if err != nil {
			return nil, nil, err
		}
		return metadata.NewSearcher(d), nil, nil
	case config.AppLastfm:
		l, err := metadata.NewLastfm(metadata.LastfmBaseURL, secrets.Lastfm)
		if err != nil {
			return nil, nil, err
		}
		return metadata.NewSearcher(l), nil, nil
	case config.AppRutracker:
		r, err := scrape.NewRutracker(scrape.RutrackerBaseURL, secrets.Rutracker)
		if err != nil {
			return nil, nil, err
		}
		return scrape.NewScraper(r), nil, nil
	default:
		return nil, nil, fmt.Errorf("no worker implements app %q", app)
	}
}

func hostsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func anyIntakeRoot(cfg *config.AppConfig) bool {
	for _, entry := range cfg.Catalogs {
		if entry.Path.Intake != "" {
			return true
		}
	}
	return false
}

// roleLogType picks the log directory for a role. Multi-role processes and
// the scheduler log under the system tree.
func roleLogType(cfg *config.AppConfig, role string) string {
	if role == "all" || role == config.AppTasks {
		return config.TypeSystem
	}
	if t := cfg.TypeOfApp(role); t != "" {
		return t
	}
	return config.TypeSystem
}

func roleMoniker(cfg *config.AppConfig, role string) string {
	if role == "all" {
		return "Sonicat"
	}
	if role == config.AppTasks {
		return "Tasks"
	}
	if m := cfg.AppMoniker(role); m != "" {
		return m
	}
	return "Sonicat"
}
