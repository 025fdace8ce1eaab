package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DecentralizedGeo/astral-api/internal/admin"
	"github.com/DecentralizedGeo/astral-api/internal/alert"
	"github.com/DecentralizedGeo/astral-api/internal/config"
	"github.com/DecentralizedGeo/astral-api/internal/domain/model"
	"github.com/DecentralizedGeo/astral-api/internal/pipeline/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["migrate"])
	assert.True(t, names["sync"])
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestSyncCmd_RequiresChain(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"sync"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"chain" not set`)
}

func TestSyncCmd_RejectsUnknownChain(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"sync", "--chain", "dogechain"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown chain "dogechain"`)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("WARN"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("info"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel(""))
}

func TestBuildSources_ExcludesChainsWithoutEndpoint(t *testing.T) {
	cfg := config.Default()
	cfg.Chains = []config.ChainConfig{
		{Name: "base", Endpoint: "https://base.easscan.org/graphql", SchemaID: "0xschema", RequestsPerSecond: 1, Burst: 1},
		{Name: "celo"},
		{Name: "sepolia", Endpoint: "https://sepolia.easscan.org/graphql", SchemaID: "0xschema", RequestsPerSecond: 1, Burst: 1},
	}

	sources, excluded := buildSources(cfg, testLogger())
	require.Len(t, sources, 2)
	assert.Equal(t, []string{"celo"}, excluded)

	src, ok := sources[model.ChainSepolia]
	require.True(t, ok)
	assert.Equal(t, "sepolia", src.Chain())
	assert.Equal(t, "0xschema", src.SchemaID())
	assert.Equal(t, []string{"base", "sepolia"}, chainNames(sources))
}

func TestRetryPolicy_FromConfig(t *testing.T) {
	p := retryPolicy(config.RetryConfig{MaxAttempts: 5, BaseDelay: 2 * time.Second, Factor: 3})
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, 2*time.Second, p.BaseDelay)
	assert.Equal(t, 3.0, p.Factor)
	assert.Equal(t, 30*time.Second, p.MaxDelay, "zero max delay keeps the default cap")
}

func TestBuildAlerter(t *testing.T) {
	cfg := config.Default()
	_, isNoop := buildAlerter(cfg, testLogger()).(*alert.NoopAlerter)
	assert.True(t, isNoop)

	cfg.Alert.SlackWebhookURL = "https://hooks.slack.test/x"
	cfg.Alert.WebhookURL = "https://alerts.test/hook"
	multi, ok := buildAlerter(cfg, testLogger()).(*alert.MultiAlerter)
	require.True(t, ok)
	assert.Equal(t, 2, multi.Len())
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

func TestHealthMux(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantBody   string
	}{
		{name: "database up", wantStatus: http.StatusOK, wantBody: "ok"},
		{name: "database down", pingErr: errors.New("connection refused"), wantStatus: http.StatusServiceUnavailable, wantBody: "database unreachable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newHealthMux(fakePinger{err: tt.pingErr}, testLogger())
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestHealthMux_ServesMetrics(t *testing.T) {
	mux := newHealthMux(fakePinger{}, testLogger())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

type fakeSync struct{}

func (fakeSync) TriggerChain(context.Context, model.Chain) (int, error) { return 0, nil }
func (fakeSync) TriggerRevocationSweep(context.Context) (int64, error)  { return 0, nil }
func (fakeSync) Stats() scheduler.StatsSnapshot                         { return scheduler.StatsSnapshot{} }
func (fakeSync) Health() []scheduler.HealthSnapshot                     { return nil }

func TestAdminHandler_RequiresTokenWhenSecretSet(t *testing.T) {
	handler, stop := newAdminHandler(fakeSync{}, nil, "s3cret", testLogger())
	defer stop()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/v1/stats", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := admin.IssueToken("s3cret", "ops", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/admin/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type fakeDBStats struct{ stats sql.DBStats }

func (f fakeDBStats) Stats() sql.DBStats { return f.stats }

type panickingDBStats struct{}

func (panickingDBStats) Stats() sql.DBStats { panic("closed pool") }

func newTestPoolGauges() dbPoolGauges {
	g := func(name string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: name})
	}
	return dbPoolGauges{
		open:         g("open"),
		inUse:        g("in_use"),
		idle:         g("idle"),
		waitCount:    g("wait_count"),
		waitDuration: g("wait_duration_seconds"),
	}
}

func TestCollectDBPoolStats(t *testing.T) {
	gauges := newTestPoolGauges()
	db := fakeDBStats{stats: sql.DBStats{
		OpenConnections: 7,
		InUse:           3,
		Idle:            4,
		WaitCount:       11,
		WaitDuration:    1500 * time.Millisecond,
	}}

	require.NoError(t, collectDBPoolStats(db, gauges))
	assert.Equal(t, 7.0, testutil.ToFloat64(gauges.open))
	assert.Equal(t, 3.0, testutil.ToFloat64(gauges.inUse))
	assert.Equal(t, 4.0, testutil.ToFloat64(gauges.idle))
	assert.Equal(t, 11.0, testutil.ToFloat64(gauges.waitCount))
	assert.Equal(t, 1.5, testutil.ToFloat64(gauges.waitDuration))
}

func TestCollectDBPoolStats_NilProvider(t *testing.T) {
	err := collectDBPoolStats(nil, newTestPoolGauges())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil")
}

func TestCollectDBPoolStats_RecoversPanic(t *testing.T) {
	err := collectDBPoolStats(panickingDBStats{}, newTestPoolGauges())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}
