package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/fixrelay/config"
	"github.com/wyfcoding/fixrelay/health"
	"github.com/wyfcoding/fixrelay/logging"
	"github.com/wyfcoding/fixrelay/metrics"
)

type fakeServer struct {
	mu       sync.Mutex
	started  chan struct{}
	stopped  bool
	startErr error
}

func newFakeServer(startErr error) *fakeServer {
	return &fakeServer{started: make(chan struct{}), startErr: startErr}
}

func (s *fakeServer) Start(ctx context.Context) error {
	close(s.started)
	if s.startErr != nil {
		return s.startErr
	}
	<-ctx.Done()
	return nil
}

func (s *fakeServer) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *fakeServer) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestApp_StopRunsCleanupsInReverse(t *testing.T) {
	srv := newFakeServer(nil)
	var order []int
	a := New("test", discardLogger(),
		WithServer(srv),
		WithCleanup(func() { order = append(order, 1) }),
		WithCleanup(func() { order = append(order, 2) }),
		WithCleanup(nil),
	)

	done := make(chan error, 1)
	go func() { done <- a.Run() }()

	<-srv.started
	a.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.True(t, srv.isStopped())
	assert.Equal(t, []int{2, 1}, order)
}

func TestApp_StartFailureShutsDown(t *testing.T) {
	srv := newFakeServer(errors.New("bind: address already in use"))
	cleaned := false
	a := New("test", discardLogger(), WithServer(srv), WithCleanup(func() { cleaned = true }))

	done := make(chan error, 1)
	go func() { done <- a.Run() }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after start failure")
	}
	assert.True(t, cleaned)
}

func testConfig() *config.Config {
	cfg := &config.Config{Version: "v1.2.3"}
	cfg.Server.HTTP.Timeout = time.Second
	cfg.Server.HTTP.MaxBodyBytes = 1 << 10
	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = "/metrics"
	return cfg
}

func testEngine(t *testing.T, b *Builder, cfg *config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logging.NewFromConfig(logging.Config{Service: "fixrelay", Module: "app", Writer: io.Discard})
	m := metrics.NewMetrics("fixrelay")
	m.RegisterSizeMetrics()
	return b.buildEngine(cfg, nil, m, logger)
}

func TestBuilder_HealthRoute(t *testing.T) {
	b := NewBuilder("fixrelay").
		WithHealthChecker("ok", func() error { return nil })
	engine := testEngine(t, b, testConfig())

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, healthPath, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status  string                   `json:"status"`
		Version string                   `json:"version"`
		Checks  map[string]health.Result `json:"checks"`
	}
	require.NoError(t, jsoniter.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, health.StatusUp, body.Status)
	assert.Equal(t, "v1.2.3", body.Version)
	assert.Contains(t, body.Checks, "ok")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestBuilder_HealthRouteDown(t *testing.T) {
	b := NewBuilder("fixrelay").
		WithHealthChecker("kafka", func() error { return errors.New("dial tcp: connection refused") })
	engine := testEngine(t, b, testConfig())

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, healthPath, nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestBuilder_MetricsRouteAndCustomRoutes(t *testing.T) {
	b := NewBuilder("fixrelay").WithGin(func(e *gin.Engine, _ any) {
		e.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "Hello, world!") })
	})
	engine := testEngine(t, b, testConfig())

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "Hello, world!", w.Body.String())

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `http_server_requests_total`)
}

func TestBuilder_MetricsRouteAbsentWithDedicatedPort(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Port = "9091"
	engine := testEngine(t, NewBuilder("fixrelay"), cfg)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExtractConfig(t *testing.T) {
	type serviceConfig struct {
		config.Config
		Extra string
	}
	sc := &serviceConfig{Config: config.Config{Version: "v9"}}
	cfg, ok := extractConfig(sc)
	require.True(t, ok)
	assert.Equal(t, "v9", cfg.Version)

	cfg, ok = extractConfig(&config.Config{Version: "v1"})
	require.True(t, ok)
	assert.Equal(t, "v1", cfg.Version)

	_, ok = extractConfig(struct{}{})
	assert.False(t, ok)
}
