package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHTTPMetrics_RecordsRoutes(t *testing.T) {
	m := NewHTTPMetrics(prometheus.NewRegistry())
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/version", func(c echo.Context) error { return c.String(http.StatusOK, "v") })
	e.GET("/metrics", func(c echo.Context) error { return c.String(http.StatusOK, "") })
	e.GET("/health/live", func(c echo.Context) error { return c.String(http.StatusOK, "") })

	for _, path := range []string{"/version", "/version", "/metrics", "/health/live"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/version", "200")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestsTotal), "skipped routes are not recorded")
}

func TestSkipRoute(t *testing.T) {
	assert.True(t, skipRoute("/metrics"))
	assert.True(t, skipRoute("/ws"))
	assert.True(t, skipRoute("/health/ready"))
	assert.False(t, skipRoute("/"))
	assert.False(t, skipRoute("/version"))
}

func TestNewRegistry_ServesMetrics(t *testing.T) {
	reg := NewRegistry()
	NewRelayMetrics(reg).ActiveConnections.Set(3)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fanout_websocket_active_connections 3")
}
