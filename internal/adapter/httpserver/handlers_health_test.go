package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pscheid92/fanout/internal/domain"
	"github.com/pscheid92/fanout/internal/platform/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthOK(_ context.Context) error { return nil }

func healthErr(msg string) func(context.Context) error {
	return func(_ context.Context) error { return errors.New(msg) }
}

type serverOption func(*serverDeps)

type serverDeps struct {
	lifecycle    *domain.Lifecycle
	healthChecks []HealthCheck
	websocket    http.Handler
	metrics      http.Handler
	wsRate       float64
	wsBurst      int
}

func withHealthChecks(checks ...HealthCheck) serverOption {
	return func(d *serverDeps) { d.healthChecks = checks }
}

func withLifecycle(l *domain.Lifecycle) serverOption {
	return func(d *serverDeps) { d.lifecycle = l }
}

// withUpgradeBurst allows n upgrade attempts and then practically no more.
func withUpgradeBurst(n int) serverOption {
	return func(d *serverDeps) {
		d.wsRate = 0.01
		d.wsBurst = n
	}
}

func newTestServer(t *testing.T, opts ...serverOption) *Server {
	t.Helper()

	deps := &serverDeps{
		lifecycle: &domain.Lifecycle{},
		websocket: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
		metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		}),
		wsRate:  100,
		wsBurst: 100,
	}
	for _, opt := range opts {
		opt(deps)
	}

	cfg := &config.Config{
		Port:               "0",
		InstanceID:         "instance-a",
		WebSocketRateLimit: deps.wsRate,
		WebSocketRateBurst: deps.wsBurst,
	}
	srv, err := NewServer(cfg, deps.websocket, deps.metrics, nil, deps.lifecycle, deps.healthChecks)
	require.NoError(t, err)
	return srv
}

func get(srv *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHandleLiveness(t *testing.T) {
	srv := newTestServer(t)

	rec := get(srv, "/health/live")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"uptime"`)
}

func TestHandleLiveness_StaysUpWhileDraining(t *testing.T) {
	lifecycle := &domain.Lifecycle{}
	lifecycle.BeginDrain()
	srv := newTestServer(t, withLifecycle(lifecycle))

	assert.Equal(t, http.StatusOK, get(srv, "/health/live").Code)
}

func TestHandleReadiness(t *testing.T) {
	tests := []struct {
		name       string
		checks     []HealthCheck
		wantStatus int
		wantBody   []string
	}{
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			wantBody:   []string{`"status":"ready"`},
		},
		{
			name:       "broker healthy",
			checks:     []HealthCheck{{Name: "broker", Check: healthOK}},
			wantStatus: http.StatusOK,
			wantBody:   []string{`"status":"ready"`},
		},
		{
			name:       "broker down",
			checks:     []HealthCheck{{Name: "broker", Check: healthErr("connection refused")}},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   []string{`"status":"unhealthy"`, `"failed_check":"broker"`, `"error":"connection refused"`},
		},
		{
			name: "first failing check is reported",
			checks: []HealthCheck{
				{Name: "broker", Check: healthOK},
				{Name: "relay", Check: healthErr("relay stopped")},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   []string{`"failed_check":"relay"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, withHealthChecks(tt.checks...))

			rec := get(srv, "/health/ready")

			assert.Equal(t, tt.wantStatus, rec.Code)
			for _, want := range tt.wantBody {
				assert.Contains(t, rec.Body.String(), want)
			}
		})
	}
}

func TestHandleReadiness_DrainingIsUnavailable(t *testing.T) {
	lifecycle := &domain.Lifecycle{}
	srv := newTestServer(t, withLifecycle(lifecycle), withHealthChecks(HealthCheck{Name: "broker", Check: healthOK}))
	require.Equal(t, http.StatusOK, get(srv, "/health/ready").Code)

	lifecycle.BeginDrain()

	rec := get(srv, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"draining","state":"draining"}`, rec.Body.String())
}

func TestHandleVersion(t *testing.T) {
	srv := newTestServer(t)

	rec := get(srv, "/version")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "instance-a", body["instance_id"])
	assert.NotEmpty(t, body["version"])
	assert.NotEmpty(t, body["go_version"])
}
