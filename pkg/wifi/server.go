package wifi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"k8s.io/klog/v2"

	"hetnet-offload/controller/pkg/coordinator"
)

// Server exposes the resource manager's REST surface: admission, release,
// and the read-only load query.
type Server struct {
	manager *Manager
	router  chi.Router
	limiter *rate.Limiter
}

func NewServer(manager *Manager, limiter *rate.Limiter) *Server {
	s := &Server{
		manager: manager,
		limiter: limiter,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)

	r.Post("/v1/offload", s.handleAdmit)
	r.Delete("/v1/offload/{clientID}/{flowID}", s.handleRelease)
	r.Get("/v1/load", s.handleLoad)
	r.Get("/v1/status", s.handleStatus)
	r.Handle("/metrics", promhttp.Handler())

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until the stop channel closes, then shuts down gracefully.
func (s *Server) Run(addr string, stopCh <-chan struct{}) error {
	srv := &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		klog.Infof("WiFi resource manager listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-stopCh:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	klog.Info("WiFi resource manager stopped")
	return nil
}

func (s *Server) handleAdmit(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		admissionLatency.Observe(time.Since(start).Seconds())
	}()

	if !s.limiter.Allow() {
		klog.Warning("Admission rate limit exceeded")
		admissionRateLimited.Inc()
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req coordinator.OffloadRequest
	if err := dec.Decode(&req); err != nil {
		klog.Warningf("Malformed offload request: %v", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := validateRequest(req); err != nil {
		klog.Warningf("Invalid offload request: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, s.manager.Admit(req))
}

func validateRequest(req coordinator.OffloadRequest) error {
	if req.Version != coordinator.SchemaVersion {
		return fmt.Errorf("unsupported schema version %d", req.Version)
	}
	if req.ClientID == "" || req.FlowID == "" {
		return fmt.Errorf("clientId and flowId are required")
	}
	if req.BandwidthMbps <= 0 {
		return fmt.Errorf("bandwidthMbps must be positive, got %.2f", req.BandwidthMbps)
	}
	return nil
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	flowID := chi.URLParam(r, "flowID")

	if !s.manager.Release(clientID, flowID) {
		http.Error(w, "no active grant", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.manager.Status())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.manager.Status()
	writeJSON(w, map[string]interface{}{
		"controller": "wifi",
		"status":     "active",
		"load":       status.Load,
		"clients":    status.Clients,
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// requestLogger logs each request line at debug verbosity.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		klog.V(4).Infof("%s %s from %s (%v)", r.Method, r.URL.Path, r.RemoteAddr, time.Since(start))
	})
}
