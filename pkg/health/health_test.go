package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h HealthService, path string) (*httptest.ResponseRecorder, Health) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestReadinessAllHealthy(t *testing.T) {
	h := NewHealth(
		Check{Name: "database", Probe: func(context.Context) error { return nil }},
		Check{Name: "redis", Probe: func(context.Context) error { return nil }},
	)

	w, body := serve(t, h, "/readyz")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, statusHealthy, body.Status)
	require.Len(t, body.Deps, 2)
	require.Equal(t, "database", body.Deps[0].Name)
}

func TestReadinessFailingDependency(t *testing.T) {
	h := NewHealth(
		Check{Name: "database", Probe: func(context.Context) error { return nil }},
		Check{Name: "redis", Probe: func(context.Context) error { return errors.New("connection refused") }},
	)

	w, body := serve(t, h, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, statusUnhealthy, body.Status)
	require.Equal(t, statusUnhealthy, body.Deps[1].Status)
	require.Equal(t, "connection refused", body.Deps[1].Message)
}

func TestLiveness(t *testing.T) {
	w, body := serve(t, NewHealth(), "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, statusHealthy, body.Status)
}
