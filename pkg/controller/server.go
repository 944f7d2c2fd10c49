package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"hetnet-offload/controller/pkg/telemetry"
)

// Server is the cellular controller's ingest surface: the emulation testbed
// pushes per-client samples and flow-end notices here, and operators read
// per-client decision state back out.
type Server struct {
	controller *Controller
	router     chi.Router
}

// sampleRequest is one testbed measurement. Unknown fields are rejected so
// schema drift between testbed and controller fails loudly.
type sampleRequest struct {
	FlowID             string  `json:"flowId"`
	X                  float64 `json:"x"`
	Y                  float64 `json:"y"`
	RSSIdBm            float64 `json:"rssiDbm"`
	PDR                float64 `json:"pdr"`
	LTEThroughputMbps  float64 `json:"lteThroughputMbps"`
	WiFiThroughputMbps float64 `json:"wifiThroughputMbps"`
}

func NewServer(controller *Controller) *Server {
	s := &Server{controller: controller}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Post("/v1/telemetry/{clientID}", s.handleSample)
	r.Delete("/v1/flows/{clientID}", s.handleFlowEnd)
	r.Get("/v1/clients/{clientID}", s.handleClient)
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
		klog.Infof("Cellular controller listening on %s", addr)
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
	klog.Info("Cellular controller stopped")
	return nil
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req sampleRequest
	if err := dec.Decode(&req); err != nil {
		klog.Warningf("Malformed sample for %s: %v", clientID, err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.FlowID == "" {
		http.Error(w, "flowId is required", http.StatusBadRequest)
		return
	}
	if req.PDR < 0 || req.PDR > 1 {
		http.Error(w, fmt.Sprintf("pdr must lie in [0,1], got %.2f", req.PDR), http.StatusBadRequest)
		return
	}

	s.controller.ObserveSample(clientID, req.FlowID, telemetry.Sample{
		Timestamp:          time.Now(),
		Position:           telemetry.Position{X: req.X, Y: req.Y},
		RSSIdBm:            req.RSSIdBm,
		PDR:                req.PDR,
		LTEThroughputMbps:  req.LTEThroughputMbps,
		WiFiThroughputMbps: req.WiFiThroughputMbps,
	})
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleFlowEnd(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	s.controller.EndFlow(r.Context(), clientID)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleClient(w http.ResponseWriter, r *http.Request) {
	st, ok := s.controller.State(chi.URLParam(r, "clientID"))
	if !ok {
		http.Error(w, "unknown client", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"clientId": st.ClientID,
		"flowId":   st.FlowID,
		"decision": st.Decision,
		"class":    st.Class,
		"wifiLoad": st.LastWiFiLoad,
	})
}
