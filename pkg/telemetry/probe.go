package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/go-ping/ping"
	"k8s.io/klog/v2"
)

// ReachState is the cached reachability of the wireless controller host.
type ReachState struct {
	RTTMs     int
	LossPct   float64
	Timestamp time.Time
}

// ControllerProbe pings the wireless controller host in the background so
// the decision side can report coordinator health without blocking a tick.
type ControllerProbe struct {
	host     string
	cache    *ReachState
	cacheMu  sync.RWMutex
	cacheTTL time.Duration
	stopCh   <-chan struct{}
}

func NewControllerProbe(host string, interval, ttl time.Duration, stopCh <-chan struct{}) *ControllerProbe {
	p := &ControllerProbe{
		host:     host,
		cacheTTL: ttl,
		stopCh:   stopCh,
		cache: &ReachState{
			RTTMs:     999,
			LossPct:   100,
			Timestamp: time.Now(),
		},
	}
	// Single initial probe
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = p.refresh(ctx)
	cancel()

	go p.probeLoop(interval)
	return p
}

func (p *ControllerProbe) probeLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = p.refresh(ctx)
			cancel()
		case <-p.stopCh:
			return
		}
	}
}

// refresh performs ICMP pings using go-ping and updates the cache
func (p *ControllerProbe) refresh(ctx context.Context) error {
	pinger, err := ping.NewPinger(p.host)
	if err != nil {
		klog.Warningf("NewPinger failed: %v", err)
		return err
	}
	// Unprivileged mode uses UDP fallback on most platforms; raw ICMP needs
	// CAP_NET_RAW.
	pinger.SetPrivileged(false)
	pinger.Count = 3
	pinger.Timeout = 3 * time.Second
	pinger.Interval = 300 * time.Millisecond

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			pinger.Stop()
		case <-done:
		}
	}()

	if err := pinger.Run(); err != nil {
		klog.Warningf("Probe of %s failed: %v", p.host, err)
		return err
	}
	close(done)

	stats := pinger.Statistics()

	p.cacheMu.Lock()
	p.cache = &ReachState{
		RTTMs:     int(stats.AvgRtt.Milliseconds()),
		LossPct:   float64(stats.PacketLoss),
		Timestamp: time.Now(),
	}
	p.cacheMu.Unlock()

	return nil
}

// Reachability returns the cached state, falling back to pessimistic
// defaults when the cache has gone stale.
func (p *ControllerProbe) Reachability() *ReachState {
	p.cacheMu.RLock()
	defer p.cacheMu.RUnlock()

	if time.Since(p.cache.Timestamp) > p.cacheTTL {
		klog.Warning("Controller probe cache stale, using pessimistic defaults")
		return &ReachState{RTTMs: 999, LossPct: 100, Timestamp: p.cache.Timestamp}
	}
	return p.cache
}
