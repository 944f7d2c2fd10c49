package controller_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"hetnet-offload/controller/pkg/config"
	"hetnet-offload/controller/pkg/constants"
	"hetnet-offload/controller/pkg/controller"
	"hetnet-offload/controller/pkg/coordinator"
	"hetnet-offload/controller/pkg/decision"
	"hetnet-offload/controller/pkg/flowlet"
	"hetnet-offload/controller/pkg/prediction"
	"hetnet-offload/controller/pkg/quality"
	"hetnet-offload/controller/pkg/telemetry"
)

type stubCoordinator struct {
	load coordinator.LoadStatus
	resp coordinator.OffloadResponse

	// stall delays every exchange, simulating a slow wireless controller.
	stall time.Duration
	// gate, when set, blocks load queries until it is closed.
	gate <-chan struct{}

	mu        sync.Mutex
	loadCalls int
	releases  int
}

func (s *stubCoordinator) SendOffloadRequest(_ context.Context, _ coordinator.OffloadRequest) (*coordinator.OffloadResponse, error) {
	if s.stall > 0 {
		time.Sleep(s.stall)
	}
	r := s.resp
	r.Version = coordinator.SchemaVersion
	return &r, nil
}

func (s *stubCoordinator) ReleaseOffload(_ context.Context, _, _ string) error {
	s.mu.Lock()
	s.releases++
	s.mu.Unlock()
	return nil
}

func (s *stubCoordinator) Load(_ context.Context) (*coordinator.LoadStatus, error) {
	if s.gate != nil {
		<-s.gate
	}
	if s.stall > 0 {
		time.Sleep(s.stall)
	}
	s.mu.Lock()
	s.loadCalls++
	s.mu.Unlock()
	l := s.load
	return &l, nil
}

func (s *stubCoordinator) counts() (loadCalls, releases int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadCalls, s.releases
}

func newTestController(co decision.Coordinator) (*controller.Controller, *telemetry.Store, *flowlet.Table) {
	store := telemetry.NewStore(30)
	table := flowlet.NewTable()
	engine := decision.NewEngine(decision.EngineConfig{
		SessionCeiling:    60 * time.Second,
		FlowletGap:        50 * time.Millisecond,
		OverloadThreshold: 0.75,
		Predictor:         prediction.NewPersistence(config.DefaultThresholds()),
		Classifier:        quality.NewClassifier(config.DefaultThresholds()),
		Coordinator:       co,
		Installer:         table,
		Telemetry:         store,
	})
	return controller.NewController(store, engine, time.Second), store, table
}

func sampleAt(ts time.Time, rssi, pdr, lteMbps, wifiMbps float64) telemetry.Sample {
	return telemetry.Sample{
		Timestamp:          ts,
		RSSIdBm:            rssi,
		PDR:                pdr,
		LTEThroughputMbps:  lteMbps,
		WiFiThroughputMbps: wifiMbps,
	}
}

func TestObserveSample_RegistersFlowOnce(t *testing.T) {
	c, _, _ := newTestController(&stubCoordinator{})

	now := time.Now()
	c.ObserveSample("ue1", "f1", sampleAt(now, -50, 0.95, 20, 10))
	c.ObserveSample("ue1", "f1", sampleAt(now.Add(time.Second), -51, 0.94, 20, 10))

	st, ok := c.State("ue1")
	if !ok {
		t.Fatal("client not registered")
	}
	if st.FlowID != "f1" || st.Decision != constants.LTEOnly {
		t.Errorf("unexpected initial state: %+v", st)
	}
	if !st.SessionStart.Equal(now) {
		t.Errorf("session start = %v, want first sample time %v", st.SessionStart, now)
	}
}

func TestTickAll_EvaluatesEveryClientIndependently(t *testing.T) {
	co := &stubCoordinator{
		load: coordinator.LoadStatus{Load: 0.10},
		resp: coordinator.OffloadResponse{Accepted: true, Address: "10.0.2.10", BandwidthMbps: 12, Load: 0.22},
	}
	c, _, table := newTestController(co)

	now := time.Now()
	c.ObserveSample("good", "fg", sampleAt(now, -50, 0.95, 20, 12))
	c.ObserveSample("weak", "fw", sampleAt(now, -90, 0.60, 10, 12))

	c.TickAll(context.Background(), now)
	c.WaitIdle()

	if st, _ := c.State("good"); st.Decision != constants.LTEOnly {
		t.Errorf("good client decision = %s, want LTE_ONLY", st.Decision)
	}
	if st, _ := c.State("weak"); st.Decision != constants.Offloading {
		t.Errorf("weak client decision = %s, want OFFLOADING", st.Decision)
	}
	if _, ok := table.Program("fw"); !ok {
		t.Error("no forwarding program for the offloaded flow")
	}
	if _, ok := table.Program("fg"); ok {
		t.Error("forwarding program installed for a cellular-only flow")
	}
}

func TestTickAll_StalledClientDoesNotBlockOthers(t *testing.T) {
	co := &stubCoordinator{
		stall: 300 * time.Millisecond,
		load:  coordinator.LoadStatus{Load: 0.10},
		resp:  coordinator.OffloadResponse{Accepted: true, Address: "10.0.2.10", BandwidthMbps: 12, Load: 0.22},
	}
	c, _, _ := newTestController(co)

	now := time.Now()
	c.ObserveSample("ue1", "f1", sampleAt(now, -90, 0.60, 10, 12))
	c.ObserveSample("ue2", "f2", sampleAt(now, -90, 0.60, 10, 12))

	// Both clients need a load query and an admission exchange, each stalled
	// 300ms. Run sequentially that is 1.2s of wall time; evaluated
	// concurrently it is about 600ms.
	start := time.Now()
	c.TickAll(context.Background(), now)
	if d := time.Since(start); d > 100*time.Millisecond {
		t.Errorf("TickAll blocked on stalled exchanges for %v", d)
	}

	// Ingest must keep flowing while evaluations are in flight.
	ingestStart := time.Now()
	c.ObserveSample("ue3", "f3", sampleAt(now, -50, 0.95, 20, 12))
	if d := time.Since(ingestStart); d > 100*time.Millisecond {
		t.Errorf("ObserveSample blocked behind a stalled tick for %v", d)
	}

	c.WaitIdle()
	if d := time.Since(start); d > time.Second {
		t.Errorf("evaluations ran serially: %v for two stalled clients", d)
	}

	for _, id := range []string{"ue1", "ue2"} {
		if st, _ := c.State(id); st.Decision != constants.Offloading {
			t.Errorf("client %s decision = %s, want OFFLOADING", id, st.Decision)
		}
	}
}

func TestTickAll_SkipsClientStillEvaluating(t *testing.T) {
	gate := make(chan struct{})
	co := &stubCoordinator{
		gate: gate,
		load: coordinator.LoadStatus{Load: 0.10},
		resp: coordinator.OffloadResponse{Accepted: true, Address: "10.0.2.10", BandwidthMbps: 12, Load: 0.22},
	}
	c, _, _ := newTestController(co)

	now := time.Now()
	c.ObserveSample("ue1", "f1", sampleAt(now, -90, 0.60, 10, 12))
	c.TickAll(context.Background(), now)

	// The first evaluation is parked on the load query; the next tick must
	// not start a second writer for the same client.
	c.ObserveSample("ue1", "f1", sampleAt(now.Add(time.Second), -90, 0.60, 10, 12))
	c.TickAll(context.Background(), now.Add(time.Second))

	close(gate)
	c.WaitIdle()

	if loadCalls, _ := co.counts(); loadCalls != 1 {
		t.Errorf("evaluations started = %d, want 1 (second tick must skip the busy client)", loadCalls)
	}
	if st, _ := c.State("ue1"); st.Decision != constants.Offloading {
		t.Errorf("decision = %s, want OFFLOADING from the first evaluation", st.Decision)
	}
}

func TestEndFlow_WaitsForInFlightEvaluation(t *testing.T) {
	gate := make(chan struct{})
	co := &stubCoordinator{
		gate: gate,
		load: coordinator.LoadStatus{Load: 0.10},
		resp: coordinator.OffloadResponse{Accepted: true, Address: "10.0.2.10", BandwidthMbps: 12, Load: 0.22},
	}
	c, _, table := newTestController(co)

	now := time.Now()
	c.ObserveSample("ue1", "f1", sampleAt(now, -90, 0.60, 10, 12))
	c.TickAll(context.Background(), now)

	time.AfterFunc(100*time.Millisecond, func() { close(gate) })

	// EndFlow arrives while the evaluation is parked; it must wait for the
	// tick to finish so the grant it installs gets released.
	c.EndFlow(context.Background(), "ue1")

	if _, ok := c.State("ue1"); ok {
		t.Error("client still registered after flow end")
	}
	if _, releases := co.counts(); releases != 1 {
		t.Errorf("grant releases = %d, want 1", releases)
	}
	if _, ok := table.Program("f1"); ok {
		t.Error("forwarding program not removed on flow end")
	}
}

func TestEndFlow_ReleasesGrantAndForgetsClient(t *testing.T) {
	co := &stubCoordinator{
		load: coordinator.LoadStatus{Load: 0.10},
		resp: coordinator.OffloadResponse{Accepted: true, Address: "10.0.2.10", BandwidthMbps: 12, Load: 0.22},
	}
	c, store, table := newTestController(co)

	now := time.Now()
	c.ObserveSample("ue1", "f1", sampleAt(now, -90, 0.60, 10, 12))
	c.TickAll(context.Background(), now)
	c.WaitIdle()

	if st, _ := c.State("ue1"); st.Decision != constants.Offloading {
		t.Fatal("setup offload failed")
	}

	c.EndFlow(context.Background(), "ue1")

	if _, ok := c.State("ue1"); ok {
		t.Error("client still registered after flow end")
	}
	if _, releases := co.counts(); releases != 1 {
		t.Errorf("grant releases = %d, want 1", releases)
	}
	if _, ok := table.Program("f1"); ok {
		t.Error("forwarding program not removed on flow end")
	}
	if _, ok := store.Latest("ue1"); ok {
		t.Error("telemetry window not dropped on flow end")
	}

	// Ending an unknown flow is a no-op.
	c.EndFlow(context.Background(), "ue1")
	if _, releases := co.counts(); releases != 1 {
		t.Errorf("repeat end released again: %d", releases)
	}
}
