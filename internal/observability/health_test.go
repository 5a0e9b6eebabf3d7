package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc/health/grpc_health_v1"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthChecker_Readiness(t *testing.T) {
	hc := NewHealthChecker(zap.NewNop())
	handler := hc.Handler()

	assert.Equal(t, http.StatusOK, get(t, handler, "/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, handler, "/readyz").Code)

	hc.SetTransportReady(true)
	rec := get(t, handler, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "READY", rec.Body.String())

	resp, err := hc.grpcHealth.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)

	require.NoError(t, hc.Shutdown(context.Background()))
	assert.Equal(t, http.StatusServiceUnavailable, get(t, handler, "/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, handler, "/readyz").Code)
	assert.False(t, hc.Ready())
}

func TestHealthChecker_UnknownRoute(t *testing.T) {
	hc := NewHealthChecker(zap.NewNop())
	assert.Equal(t, http.StatusNotFound, get(t, hc.Handler(), "/metrics").Code)
}
