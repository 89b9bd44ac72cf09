// SPDX-License-Identifier: MIT

// Package ops exposes the operator HTTP surface: liveness, readiness,
// Prometheus metrics, and a JSON status snapshot of queue depths and
// ledger sizes. This is an operator tool, not a query API; it binds to a
// loopback address and is disabled entirely when no address is configured.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jdswan/sonicat/internal/appdata"
	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/queue"
)

// Broker is the slice of the queue fabric the status surface reads.
type Broker interface {
	Ping(ctx context.Context) error
	Depths(ctx context.Context, roles []string) (map[string]map[string]int64, error)
}

// Server is the ops listener.
type Server struct {
	cfg    *config.AppConfig
	broker Broker
	http   *http.Server
	logger zerolog.Logger
}

// LedgerCounts is one app's ledger sizes for one catalog.
type LedgerCounts struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// StatusReport is the /status payload.
type StatusReport struct {
	Queues  map[string]map[string]int64             `json:"queues"`
	Ledgers map[string]map[string]LedgerCounts      `json:"ledgers"` // app -> catalog -> counts
}

// New builds the server. Routes carry IP rate limiting and OTel HTTP
// instrumentation the same way every other outward surface here does.
func New(cfg *config.AppConfig, broker Broker) *Server {
	s := &Server{
		cfg:    cfg,
		broker: broker,
		logger: log.WithComponent("ops"),
	}
	r := chi.NewRouter()
	r.Use(httprate.Limit(60, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/status", s.handleStatus)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.http = &http.Server{
		Addr:              cfg.Ops.Addr,
		Handler:           otelhttp.NewHandler(r, "sonicat.ops"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler exposes the route tree for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until the context is cancelled, then drains.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	s.logger.Info().
		Str(log.FieldEvent, "ops.listening").
		Str("addr", ln.Addr().String()).
		Msg("ops surface up")

	errCh := make(chan error, 1)
	go func() { errCh <- s.http.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports ready once the broker answers; a catalog with no
// replicas yet is still ready, just idle.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.broker.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unready", "reason": "broker unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.Collect(r.Context())
	if err != nil {
		s.logger.Error().Err(err).
			Str(log.FieldEvent, "ops.status_failed").
			Msg("status collection failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "status collection failed"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Collect assembles the status snapshot: live queue depths from the
// broker and ledger counts from the exported replicas.
func (s *Server) Collect(ctx context.Context) (StatusReport, error) {
	report := StatusReport{
		Queues:  map[string]map[string]int64{},
		Ledgers: map[string]map[string]LedgerCounts{},
	}
	roles := append([]string{config.AppTasks}, s.cfg.AppNames()...)
	depths, err := s.broker.Depths(ctx, roles)
	if err != nil {
		return report, err
	}
	report.Queues = depths

	for _, app := range s.cfg.AppNames() {
		switch s.cfg.TypeOfApp(app) {
		case config.TypeAnalysis, config.TypeMetadata, config.TypeTokens:
		default:
			continue
		}
		replica := config.ReplicaPath(s.cfg.AppDBPath(app))
		if _, err := os.Stat(replica); err != nil {
			continue
		}
		ledger, err := appdata.OpenLedger(app, replica)
		if err != nil {
			return report, err
		}
		byCatalog := map[string]LedgerCounts{}
		for _, catalogName := range s.cfg.CatalogNames() {
			completed, err := ledger.Completed(ctx, catalogName)
			if err != nil {
				_ = ledger.Close()
				return report, err
			}
			failed, err := ledger.Failed(ctx, catalogName)
			if err != nil {
				_ = ledger.Close()
				return report, err
			}
			byCatalog[catalogName] = LedgerCounts{Completed: len(completed), Failed: len(failed)}
		}
		_ = ledger.Close()
		report.Ledgers[app] = byCatalog
	}
	return report, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// interface guard
var _ Broker = (*queue.Broker)(nil)
