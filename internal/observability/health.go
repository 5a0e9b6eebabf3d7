package observability

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// HealthChecker serves liveness and readiness over gRPC and HTTP
type HealthChecker struct {
	grpcHealth     *health.Server
	httpServer     *http.Server
	logger         *zap.Logger
	mu             sync.RWMutex
	alive          bool
	transportReady bool
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(logger *zap.Logger) *HealthChecker {
	h := &HealthChecker{
		grpcHealth: health.NewServer(),
		logger:     logger,
		alive:      true,
	}
	h.grpcHealth.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return h
}

// RegisterGRPC registers the health service with the gRPC server
func (h *HealthChecker) RegisterGRPC(s *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(s, h.grpcHealth)
}

// Handler returns the HTTP routes: /healthz (liveness) and /readyz (tailers running)
func (h *HealthChecker) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", h.handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/readyz", h.handleReadyz).Methods(http.MethodGet)
	return router
}

// StartHTTPServer starts the HTTP health check server
func (h *HealthChecker) StartHTTPServer(addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: h.Handler(),
	}
	h.mu.Lock()
	h.httpServer = srv
	h.mu.Unlock()

	h.logger.Info("starting HTTP health server", zap.String("addr", addr))
	return srv.ListenAndServe()
}

// Shutdown marks the service as not serving and stops the HTTP server
func (h *HealthChecker) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.alive = false
	h.transportReady = false
	h.grpcHealth.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	srv := h.httpServer
	h.mu.Unlock()

	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// SetTransportReady flips readiness once the command and reply tailers are running
func (h *HealthChecker) SetTransportReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transportReady = ready

	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if ready && h.alive {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.grpcHealth.SetServingStatus("", status)
}

// Ready reports whether the service accepts traffic
func (h *HealthChecker) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.alive && h.transportReady
}

func (h *HealthChecker) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	alive := h.alive
	h.mu.RUnlock()

	if alive {
		writeStatus(w, http.StatusOK, "OK")
		return
	}
	writeStatus(w, http.StatusServiceUnavailable, "SHUTTING_DOWN")
}

func (h *HealthChecker) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if h.Ready() {
		writeStatus(w, http.StatusOK, "READY")
		return
	}
	writeStatus(w, http.StatusServiceUnavailable, "NOT_READY")
}

func writeStatus(w http.ResponseWriter, code int, body string) {
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}
