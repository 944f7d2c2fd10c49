package decision

import (
	"context"
	"time"

	"k8s.io/klog/v2"

	"hetnet-offload/controller/pkg/constants"
	"hetnet-offload/controller/pkg/coordinator"
	"hetnet-offload/controller/pkg/flowlet"
	"hetnet-offload/controller/pkg/prediction"
	"hetnet-offload/controller/pkg/quality"
	"hetnet-offload/controller/pkg/telemetry"
)

// Coordinator is the engine's view of the cross-controller client. Calls are
// synchronous and bounded by the client's timeout.
type Coordinator interface {
	SendOffloadRequest(ctx context.Context, req coordinator.OffloadRequest) (*coordinator.OffloadResponse, error)
	ReleaseOffload(ctx context.Context, clientID, flowID string) error
	Load(ctx context.Context) (*coordinator.LoadStatus, error)
}

// Prober reports cached reachability of the wireless controller host.
type Prober interface {
	Reachability() *telemetry.ReachState
}

// Result is the outcome of one tick evaluation for one client.
type Result struct {
	Decision constants.Decision
	Reason   string
	Class    constants.Class
	Forecast prediction.Prediction
}

type EngineConfig struct {
	SessionCeiling    time.Duration // forced offload past this cellular-only time
	FlowletGap        time.Duration
	OverloadThreshold float64

	Predictor   prediction.Predictor
	Classifier  quality.Classifier
	Coordinator Coordinator
	Installer   flowlet.Installer
	Telemetry   telemetry.HistorySource

	// Probe is optional; when set, total packet loss to the wireless host
	// short-circuits the admission exchange for the tick.
	Probe Prober
}

// Engine evaluates one client per call. It mutates the passed ClientState;
// the caller's monitor loop must be the only writer of that state.
type Engine struct {
	config EngineConfig
}

func NewEngine(config EngineConfig) *Engine {
	if config.Predictor == nil {
		klog.Fatal("Predictor must be provided")
	}
	if config.Coordinator == nil {
		klog.Fatal("Coordinator must be provided")
	}
	if config.Installer == nil {
		klog.Fatal("Installer must be provided")
	}
	if config.Telemetry == nil {
		klog.Fatal("Telemetry source must be provided")
	}
	if config.SessionCeiling <= 0 {
		klog.Fatal("SessionCeiling must be positive")
	}
	return &Engine{config: config}
}

// Tick re-evaluates the client against its forecast link quality.
//
// While the cellular-only session is under the ceiling, a Good forecast keeps
// (or returns) the client on cellular and anything worse triggers an offload
// attempt. At or past the ceiling the offload is forced regardless of class.
// A failed attempt never changes the decision: the client stays where it is
// and the attempt is repeated on the next tick.
func (e *Engine) Tick(ctx context.Context, st *ClientState, now time.Time) Result {
	start := time.Now()
	defer func() {
		decisionLatency.Observe(time.Since(start).Seconds())
	}()

	sample, ok := e.config.Telemetry.Latest(st.ClientID)
	if !ok || !sample.Timestamp.After(st.lastEvaluated) {
		// No fresh sample this tick. Skip evaluation, keep the prior
		// decision, and keep the session timer running.
		klog.V(4).Infof("%s: no fresh telemetry, retaining %s", st.ClientID, st.Decision)
		return record(Result{st.Decision, constants.ReasonTelemetryMissing, st.Class, prediction.Prediction{}})
	}
	st.lastEvaluated = sample.Timestamp
	st.Position = sample.Position

	forecast, err := e.config.Predictor.Forecast(e.config.Telemetry.History(st.ClientID))
	if err != nil {
		klog.Warningf("%s: forecast failed: %v", st.ClientID, err)
		return record(Result{st.Decision, constants.ReasonTelemetryMissing, st.Class, prediction.Prediction{}})
	}

	class := e.config.Classifier.Classify(forecast.RSSIdBm, forecast.PDR)
	st.Class = class
	recordForecast(st.ClientID, forecast.RSSIdBm, forecast.PDR)

	tLTE := st.TLTE(now)
	forced := st.Decision == constants.LTEOnly && tLTE >= e.config.SessionCeiling

	klog.Infof("%s client=%s pos=(%.1f,%.1f) rssi=%.1fdBm pdr=%.2f class=%s conf=%.2f lte=%.1fMbps wifiLoad=%.2f t_lte=%v flow=%s",
		constants.EventMonitor, st.ClientID, st.Position.X, st.Position.Y,
		forecast.RSSIdBm, forecast.PDR, class, forecast.Confidence,
		sample.LTEThroughputMbps, st.LastWiFiLoad, tLTE.Round(time.Millisecond), st.FlowID)

	switch {
	case st.Decision == constants.Offloading:
		if class == constants.Good {
			return record(e.revert(ctx, st, now, forecast))
		}
		// Grant stays in place; refresh the split from the latest cellular
		// estimate so the weights track the link.
		e.refreshProgram(st, sample)
		return record(Result{constants.Offloading, constants.ReasonQualityDegraded, class, forecast})

	case forced:
		return record(e.tryOffload(ctx, st, sample, constants.ReasonForcedOffload, forecast))

	case class == constants.Good:
		return record(Result{constants.LTEOnly, constants.ReasonQualityGood, class, forecast})

	default:
		return record(e.tryOffload(ctx, st, sample, constants.ReasonQualityDegraded, forecast))
	}
}

// tryOffload runs the admission exchange and installs the forwarding program.
// Any failure leaves the client on cellular for this tick.
func (e *Engine) tryOffload(ctx context.Context, st *ClientState, sample telemetry.Sample, reason string, forecast prediction.Prediction) Result {
	if e.config.Probe != nil {
		if reach := e.config.Probe.Reachability(); reach.LossPct >= 100 {
			klog.V(4).Infof("%s: wireless host unreachable (loss=%.0f%%), skipping exchange", st.ClientID, reach.LossPct)
			return Result{constants.LTEOnly, constants.ReasonCoordinatorStale, st.Class, forecast}
		}
	}

	load, err := e.config.Coordinator.Load(ctx)
	if err != nil {
		klog.Warningf("%s: load query failed, staying on cellular: %v", st.ClientID, err)
		return Result{constants.LTEOnly, constants.ReasonCoordinatorStale, st.Class, forecast}
	}
	st.LastWiFiLoad = load.Load
	if load.Load >= e.config.OverloadThreshold {
		klog.V(4).Infof("%s: wireless side overloaded (%.2f >= %.2f)", st.ClientID, load.Load, e.config.OverloadThreshold)
		return Result{constants.LTEOnly, constants.ReasonWiFiOverloaded, st.Class, forecast}
	}

	req := coordinator.OffloadRequest{
		ClientID:      st.ClientID,
		FlowID:        st.FlowID,
		BandwidthMbps: sample.WiFiThroughputMbps,
	}
	resp, err := e.config.Coordinator.SendOffloadRequest(ctx, req)
	if err != nil {
		klog.Warningf("%s: offload request failed, retrying next tick: %v", st.ClientID, err)
		return Result{constants.LTEOnly, constants.ReasonCoordinatorStale, st.Class, forecast}
	}
	coordinator.LogRoundTrip(req, resp)
	st.LastWiFiLoad = resp.Load

	if !resp.Accepted {
		klog.Infof("%s client=%s admission rejected: %s", constants.EventMonitor, st.ClientID, resp.Reason)
		return Result{constants.LTEOnly, constants.ReasonAdmissionRejected, st.Class, forecast}
	}

	// The admission exchange can outlast a tick. If a newer sample arrived
	// while we were blocked and the link has recovered, the grant is stale:
	// release it instead of applying it.
	if latest, ok := e.config.Telemetry.Latest(st.ClientID); ok && latest.Timestamp.After(sample.Timestamp) {
		if e.config.Classifier.Classify(latest.RSSIdBm, latest.PDR) == constants.Good && reason != constants.ReasonForcedOffload {
			klog.Infof("%s client=%s link recovered mid-exchange, releasing stale grant", constants.EventMonitor, st.ClientID)
			if err := e.config.Coordinator.ReleaseOffload(ctx, st.ClientID, st.FlowID); err != nil {
				klog.Warningf("%s: stale grant release failed: %v", st.ClientID, err)
			}
			return Result{constants.LTEOnly, constants.ReasonQualityGood, st.Class, forecast}
		}
	}

	program, err := flowlet.BuildProgram(st.FlowID, sample.LTEThroughputMbps, resp.BandwidthMbps, e.config.FlowletGap)
	if err != nil {
		klog.Warningf("%s: unusable split inputs (lte=%.2f wifi=%.2f), releasing grant: %v",
			st.ClientID, sample.LTEThroughputMbps, resp.BandwidthMbps, err)
		if relErr := e.config.Coordinator.ReleaseOffload(ctx, st.ClientID, st.FlowID); relErr != nil {
			klog.Warningf("%s: grant release failed: %v", st.ClientID, relErr)
		}
		return Result{constants.LTEOnly, constants.ReasonTelemetryMissing, st.Class, forecast}
	}
	if err := e.config.Installer.Install(program); err != nil {
		klog.Warningf("%s: program install failed, releasing grant: %v", st.ClientID, err)
		if relErr := e.config.Coordinator.ReleaseOffload(ctx, st.ClientID, st.FlowID); relErr != nil {
			klog.Warningf("%s: grant release failed: %v", st.ClientID, relErr)
		}
		return Result{constants.LTEOnly, constants.ReasonCoordinatorStale, st.Class, forecast}
	}

	st.Decision = constants.Offloading
	st.GrantAddress = resp.Address
	st.GrantMbps = resp.BandwidthMbps
	offloadedClients.Inc()

	klog.Infof("%s client=%s flow=%s addr=%s gw=%s bw=%.1fMbps weights=%d/%d reason=%s",
		constants.EventOffload, st.ClientID, st.FlowID, resp.Address, resp.Gateway,
		resp.BandwidthMbps, program.Buckets[0].Weight, program.Buckets[1].Weight, reason)

	return Result{constants.Offloading, reason, st.Class, forecast}
}

// revert returns an offloaded client to cellular-only, releasing the grant
// and removing its forwarding program. The session timer restarts.
func (e *Engine) revert(ctx context.Context, st *ClientState, now time.Time, forecast prediction.Prediction) Result {
	if err := e.config.Coordinator.ReleaseOffload(ctx, st.ClientID, st.FlowID); err != nil {
		// The wireless side drops the grant on flow end anyway; reverting
		// must not block on a failed release.
		klog.Warningf("%s: grant release failed: %v", st.ClientID, err)
	}
	if err := e.config.Installer.Remove(st.FlowID); err != nil {
		klog.Warningf("%s: program removal failed: %v", st.ClientID, err)
	}

	st.Decision = constants.LTEOnly
	st.SessionStart = now
	st.GrantAddress = ""
	st.GrantMbps = 0
	offloadedClients.Dec()

	klog.Infof("%s client=%s flow=%s link recovered, back to cellular", constants.EventRevert, st.ClientID, st.FlowID)
	return Result{constants.LTEOnly, constants.ReasonQualityGood, constants.Good, forecast}
}

// refreshProgram recomputes the split for an already-offloaded client from
// the latest cellular estimate and the granted wireless bandwidth. Installs
// are idempotent, so an unchanged split is a no-op.
func (e *Engine) refreshProgram(st *ClientState, sample telemetry.Sample) {
	program, err := flowlet.BuildProgram(st.FlowID, sample.LTEThroughputMbps, st.GrantMbps, e.config.FlowletGap)
	if err != nil {
		klog.Warningf("%s: unusable split inputs, keeping prior program: %v", st.ClientID, err)
		return
	}
	if err := e.config.Installer.Install(program); err != nil {
		klog.Warningf("%s: program refresh failed, keeping prior program: %v", st.ClientID, err)
	}
}

// Shutdown releases the client's grant and program when its flow ends.
func (e *Engine) Shutdown(ctx context.Context, st *ClientState) {
	forgetForecast(st.ClientID)
	if st.Decision != constants.Offloading {
		return
	}
	if err := e.config.Coordinator.ReleaseOffload(ctx, st.ClientID, st.FlowID); err != nil {
		klog.Warningf("%s: grant release on flow end failed: %v", st.ClientID, err)
	}
	if err := e.config.Installer.Remove(st.FlowID); err != nil {
		klog.Warningf("%s: program removal on flow end failed: %v", st.ClientID, err)
	}
	offloadedClients.Dec()
}
