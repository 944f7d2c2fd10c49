package offload_test

import (
	"context"
	"fmt"
	"math"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"hetnet-offload/controller/pkg/config"
	"hetnet-offload/controller/pkg/constants"
	"hetnet-offload/controller/pkg/controller"
	"hetnet-offload/controller/pkg/coordinator"
	"hetnet-offload/controller/pkg/decision"
	"hetnet-offload/controller/pkg/flowlet"
	"hetnet-offload/controller/pkg/prediction"
	"hetnet-offload/controller/pkg/quality"
	"hetnet-offload/controller/pkg/telemetry"
	"hetnet-offload/controller/pkg/wifi"
)

// harness wires both controllers together over a real HTTP boundary.
type harness struct {
	ctrl    *controller.Controller
	manager *wifi.Manager
	table   *flowlet.Table
}

func newHarness(t *testing.T, capacityMbps float64) *harness {
	t.Helper()

	manager := wifi.NewManager(&config.WiFiConfig{
		CapacityMbps:      capacityMbps,
		OverloadThreshold: 0.75,
		MaxClients:        10,
		Gateways: []config.Gateway{
			{Name: "gw1", Addresses: []string{"10.0.2.10", "10.0.2.11", "10.0.2.12"}},
		},
	})
	ts := httptest.NewServer(wifi.NewServer(manager, rate.NewLimiter(rate.Inf, 0)).Handler())
	t.Cleanup(ts.Close)

	store := telemetry.NewStore(30)
	table := flowlet.NewTable()
	engine := decision.NewEngine(decision.EngineConfig{
		SessionCeiling:    60 * time.Second,
		FlowletGap:        50 * time.Millisecond,
		OverloadThreshold: 0.75,
		Predictor:         prediction.NewPersistence(config.DefaultThresholds()),
		Classifier:        quality.NewClassifier(config.DefaultThresholds()),
		Coordinator:       coordinator.NewClient(ts.URL, 2*time.Second),
		Installer:         table,
		Telemetry:         store,
	})

	return &harness{
		ctrl:    controller.NewController(store, engine, time.Second),
		manager: manager,
		table:   table,
	}
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

// The full degrade/offload/recover cycle across both controllers.
func TestOffloadLifecycle(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()
	base := time.Now()

	// Tick 1: strong link, client stays on cellular.
	h.ctrl.ObserveSample("ue1", "f1", sampleAt(base, -60, 0.95, 20, 15.6))
	h.ctrl.TickAll(ctx, base)
	h.ctrl.WaitIdle()

	if st, _ := h.ctrl.State("ue1"); st.Decision != constants.LTEOnly {
		t.Fatalf("decision = %s after good tick, want LTE_ONLY", st.Decision)
	}
	if h.manager.Load() != 0 {
		t.Fatalf("wireless load = %.3f before any offload", h.manager.Load())
	}

	// Tick 2: link degrades, offload goes through admission.
	t2 := base.Add(time.Second)
	h.ctrl.ObserveSample("ue1", "f1", sampleAt(t2, -80, 0.80, 10.2, 15.6))
	h.ctrl.TickAll(ctx, t2)
	h.ctrl.WaitIdle()

	st, _ := h.ctrl.State("ue1")
	if st.Decision != constants.Offloading {
		t.Fatalf("decision = %s after degraded tick, want OFFLOADING", st.Decision)
	}
	if st.GrantAddress == "" {
		t.Error("no wireless address leased")
	}
	if math.Abs(h.manager.Load()-0.156) > 1e-9 {
		t.Errorf("wireless load = %.4f, want 0.156", h.manager.Load())
	}

	prog, ok := h.table.Program("f1")
	if !ok {
		t.Fatal("no forwarding program installed")
	}
	// 10.2 vs 15.6 Mbps splits 40/60.
	if prog.Buckets[0].Weight != 40 || prog.Buckets[1].Weight != 60 {
		t.Errorf("weights = %d/%d, want 40/60", prog.Buckets[0].Weight, prog.Buckets[1].Weight)
	}

	// Packets inside one flowlet stay on one path.
	first, err := h.table.Assign("f1", t2)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	again, _ := h.table.Assign("f1", t2.Add(10*time.Millisecond))
	if first != again {
		t.Errorf("paths %v and %v within one flowlet", first, again)
	}

	// Tick 3: link recovers, grant released over the wire.
	t3 := t2.Add(time.Second)
	h.ctrl.ObserveSample("ue1", "f1", sampleAt(t3, -60, 0.95, 20, 15.6))
	h.ctrl.TickAll(ctx, t3)
	h.ctrl.WaitIdle()

	if st, _ := h.ctrl.State("ue1"); st.Decision != constants.LTEOnly {
		t.Fatalf("decision = %s after recovery, want LTE_ONLY", st.Decision)
	}
	if h.manager.Load() != 0 {
		t.Errorf("wireless load = %.4f after release, want 0", h.manager.Load())
	}
	if _, ok := h.table.Program("f1"); ok {
		t.Error("forwarding program survived the revert")
	}

	// Flow end with nothing held is clean.
	h.ctrl.EndFlow(ctx, "ue1")
	if _, ok := h.ctrl.State("ue1"); ok {
		t.Error("client still monitored after flow end")
	}
}

// A busy wireless side turns offload attempts away at the pre-check, and the
// client keeps retrying from cellular.
func TestOffloadHeldBackByWirelessLoad(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()
	base := time.Now()

	// Saturate the wireless side past the 0.75 threshold.
	resp := h.manager.Admit(coordinator.OffloadRequest{
		Version: coordinator.SchemaVersion, ClientID: "bg", FlowID: "bg-flow", BandwidthMbps: 80,
	})
	if !resp.Accepted {
		t.Fatalf("background admission rejected: %s", resp.Reason)
	}

	h.ctrl.ObserveSample("ue1", "f1", sampleAt(base, -90, 0.60, 10, 5))
	h.ctrl.TickAll(ctx, base)
	h.ctrl.WaitIdle()

	st, _ := h.ctrl.State("ue1")
	if st.Decision != constants.LTEOnly {
		t.Fatalf("decision = %s with busy wireless side, want LTE_ONLY", st.Decision)
	}
	if math.Abs(h.manager.Load()-0.80) > 1e-9 {
		t.Errorf("wireless load changed to %.4f", h.manager.Load())
	}

	// Background load drains; the next tick's retry succeeds.
	h.manager.Release("bg", "bg-flow")
	t2 := base.Add(time.Second)
	h.ctrl.ObserveSample("ue1", "f1", sampleAt(t2, -90, 0.60, 10, 5))
	h.ctrl.TickAll(ctx, t2)
	h.ctrl.WaitIdle()

	if st, _ := h.ctrl.State("ue1"); st.Decision != constants.Offloading {
		t.Fatalf("decision = %s after load drained, want OFFLOADING", st.Decision)
	}
}

// With tight capacity only one degraded client gets in; the rest stay on
// cellular without disturbing the granted client.
func TestCapacityLimitsConcurrentOffloads(t *testing.T) {
	h := newHarness(t, 20)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("ue%d", i)
		h.ctrl.ObserveSample(id, id+"-flow", sampleAt(base, -90, 0.60, 10, 15.6))
	}
	h.ctrl.TickAll(ctx, base)
	h.ctrl.WaitIdle()

	offloaded := 0
	for i := 0; i < 3; i++ {
		st, _ := h.ctrl.State(fmt.Sprintf("ue%d", i))
		if st.Decision == constants.Offloading {
			offloaded++
		}
	}
	// 15.6 of 20 Mbps puts load at 0.78. Whichever request is admitted first
	// fills the link; the others are turned away at the 0.75 pre-check or by
	// the capacity check, depending on interleaving.
	if offloaded != 1 {
		t.Errorf("offloaded clients = %d, want exactly 1", offloaded)
	}
	if h.manager.Load() > 1.0+1e-9 {
		t.Errorf("wireless load overshot capacity: %.4f", h.manager.Load())
	}
}
