// SPDX-License-Identifier: MIT

package ops

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/jdswan/sonicat/internal/appdata"
	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/metrics"
	"github.com/jdswan/sonicat/internal/task"
)

type stubBroker struct {
	pingErr error
	depths  map[string]map[string]int64
}

func (b *stubBroker) Ping(context.Context) error { return b.pingErr }

func (b *stubBroker) Depths(context.Context, []string) (map[string]map[string]int64, error) {
	return b.depths, nil
}

func testServer(t *testing.T, broker Broker) (*Server, *config.AppConfig) {
	t.Helper()
	cfg := &config.AppConfig{
		Root: t.TempDir(),
		Ops:  config.OpsConfig{Addr: "127.0.0.1:0"},
		Catalogs: map[string]config.CatalogConfig{
			"main": {Moniker: "Main"},
		},
		Apps: map[string]map[string]config.AppEntry{
			config.TypeMetadata: {config.AppRutracker: {Moniker: "Pages"}},
		},
	}
	return New(cfg, broker), cfg
}

func TestHealthz(t *testing.T) {
	s, _ := testServer(t, &stubBroker{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReflectsBroker(t *testing.T) {
	s, _ := testServer(t, &stubBroker{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	s, _ = testServer(t, &stubBroker{pingErr: errors.New("down")})
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusReportsQueuesAndLedgers(t *testing.T) {
	broker := &stubBroker{depths: map[string]map[string]int64{
		"tasks": {"command": 0, "inbound": 3},
	}}
	s, cfg := testServer(t, broker)
	ctx := context.Background()

	pages, err := appdata.OpenPages(cfg.AppDBPath(config.AppRutracker))
	require.NoError(t, err)
	_, err = pages.RecordPages(ctx, "main", 1, []task.PageResult{{Name: "x", SiteID: "1"}})
	require.NoError(t, err)
	require.NoError(t, pages.RecordFailedSearch(ctx, "main", 2))
	require.NoError(t, pages.ExportReplica())
	require.NoError(t, pages.Close())

	report, err := s.Collect(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), report.Queues["tasks"]["inbound"])
	require.Equal(t, LedgerCounts{Completed: 1, Failed: 1}, report.Ledgers[config.AppRutracker]["main"])
}

func TestStatusSkipsAppsWithoutReplica(t *testing.T) {
	s, _ := testServer(t, &stubBroker{depths: map[string]map[string]int64{}})
	report, err := s.Collect(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.Ledgers)
}

// The /metrics endpoint serves the default registry, where the fabric
// counters live under the sonicat namespace.
func TestMetricsEndpointCarriesFabricFamilies(t *testing.T) {
	metrics.SetQueueDepth("tasks", "inbound", 3)

	s, _ := testServer(t, &stubBroker{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	var depth *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "sonicat_queue_depth" {
			depth = f
		}
	}
	require.NotNil(t, depth, "queue depth gauge must be registered")
}
