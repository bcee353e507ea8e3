package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/playbookrun/controller/common/logger"
)

// HealthChecker reports whether the controller's scheduler loop is making progress. The
// admin server itself has no opinion on liveness; it only asks.
type HealthChecker interface {
	Healthy() bool
}

// AdminServer exposes the run controller's operational surface: liveness, readiness, and
// Prometheus metrics. It never carries playbook traffic — that happens entirely through the
// document store and Kubernetes Jobs.
type AdminServer struct {
	httpServer *http.Server
	log        logger.Log
}

func NewAdminServer(addr string, reg *prometheus.Registry, checker HealthChecker, logFactory logger.LogFactory) *AdminServer {
	log := logFactory("admin-server")

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if checker != nil && !checker.Healthy() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &AdminServer{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Start runs the admin HTTP server until Stop is called or it hits an unrecoverable error.
// It is meant to be launched in its own goroutine; ListenAndServe's own error is logged
// rather than returned because by the time it fires the caller has usually already moved on
// to driving the scheduler loop.
func (s *AdminServer) Start() {
	s.log.WithField("address", s.httpServer.Addr).Info("admin server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.WithField("error", err).Error("admin server exited")
	}
}

func (s *AdminServer) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
