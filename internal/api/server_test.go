package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"engine-core/internal/engine"
	"engine-core/internal/events"
	"engine-core/internal/monitor"
	"engine-core/internal/order"
	"engine-core/internal/recovery"
	"engine-core/internal/risk"
	"engine-core/internal/signal"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type flatProducer struct{}

func (flatProducer) Predict(ctx context.Context, f signal.Features) (signal.Signal, error) {
	return signal.Signal{Side: signal.SideFlat, ProbUp: 0.5}, nil
}

type acceptAllExecutor struct{}

func (acceptAllExecutor) Submit(ctx context.Context, req order.Request) (order.Result, error) {
	return order.Result{OK: true, OrderID: "test"}, nil
}

func newTestServer(t *testing.T) (*Server, *engine.Manager) {
	t.Helper()
	log := zap.NewNop()
	bus := events.NewBus()
	riskMgr := risk.NewManager(risk.DefaultPolicy(), 10000, log)
	deps := engine.Deps{
		Producer: flatProducer{},
		Executor: acceptAllExecutor{},
		Risk:     riskMgr,
	}
	cfgFor := func(string) engine.Config {
		return engine.Config{CycleInterval: 5 * time.Millisecond}
	}
	mgr := engine.NewManager(context.Background(), cfgFor, deps, recovery.New(5, time.Millisecond), bus, log)
	t.Cleanup(func() { mgr.StopAll(time.Second) })

	return NewServer(mgr, riskMgr, monitor.NewCycleMetrics(), bus, log, testSecret), mgr
}

func bearerToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "operator",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func doRequest(s *Server, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	w := doRequest(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetEnginesSummary(t *testing.T) {
	s, mgr := newTestServer(t)
	mgr.StartAll([]string{"BTCUSDT"})

	w := doRequest(s, http.MethodGet, "/api/engines", "")
	require.Equal(t, http.StatusOK, w.Code)

	var summary engine.FleetSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Total)
	require.Len(t, summary.Engines, 1)
	assert.Equal(t, "BTCUSDT", summary.Engines[0].Symbol)
}

func TestGetEngineStatusNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	w := doRequest(s, http.MethodGet, "/api/engines/DOGEUSDT", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetRiskSummary(t *testing.T) {
	s, _ := newTestServer(t)
	w := doRequest(s, http.MethodGet, "/api/risk", "")
	require.Equal(t, http.StatusOK, w.Code)

	var summary risk.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.InDelta(t, 10000, summary.EquityNow, 1e-9)
	assert.False(t, summary.GlobalStop)
}

func TestMutatingEndpointsRequireAuth(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, http.MethodPost, "/api/engines/BTCUSDT/start", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(s, http.MethodPost, "/api/engines/BTCUSDT/start", "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStartStopEngineViaAPI(t *testing.T) {
	s, mgr := newTestServer(t)
	auth := bearerToken(t)

	w := doRequest(s, http.MethodPost, "/api/engines/BTCUSDT/start", auth)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mgr.EngineHealth("BTCUSDT"))

	// Double start conflicts.
	w = doRequest(s, http.MethodPost, "/api/engines/BTCUSDT/start", auth)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(s, http.MethodPost, "/api/engines/BTCUSDT/stop", auth)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, mgr.EngineHealth("BTCUSDT"))

	// Stopping the now-absent engine is a 404.
	w = doRequest(s, http.MethodPost, "/api/engines/BTCUSDT/stop", auth)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRestartDeniedMapsTo429(t *testing.T) {
	s, _ := newTestServer(t)
	auth := bearerToken(t)

	// The test policy allows 5 per hour with near-zero backoff; the 6th
	// restart within the window is refused.
	for i := 0; i < 5; i++ {
		w := doRequest(s, http.MethodPost, "/api/engines/BTCUSDT/restart", auth)
		require.Equal(t, http.StatusOK, w.Code, "restart %d", i+1)
	}
	w := doRequest(s, http.MethodPost, "/api/engines/BTCUSDT/restart", auth)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestResetDayViaAPI(t *testing.T) {
	s, _ := newTestServer(t)
	auth := bearerToken(t)

	s.Risk.UpdateEquity(-300)
	require.True(t, s.Risk.IsGlobalStop())

	w := doRequest(s, http.MethodPost, "/api/risk/reset-day", auth)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, s.Risk.IsGlobalStop())
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	s.Metrics.ObserveCycle(10 * time.Millisecond)
	s.Metrics.ObserveFault()

	w := doRequest(s, http.MethodGet, "/api/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)

	var snap monitor.MetricsSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, uint64(1), snap.Cycles)
	assert.Equal(t, uint64(1), snap.Faults)
}
