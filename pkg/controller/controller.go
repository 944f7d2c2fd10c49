package controller

import (
	"context"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"hetnet-offload/controller/pkg/decision"
	"hetnet-offload/controller/pkg/telemetry"
)

// Controller runs the cellular-side monitor loop. It owns the client
// registry: flows are registered when their first sample arrives and
// deregistered when the testbed reports flow end.
//
// Clients are evaluated concurrently, each by at most one goroutine at a
// time (the in-flight guard), so decision state keeps a single writer
// without a per-state lock and a stalled coordinator exchange for one
// client never delays the others. The registry lock is only ever held for
// map operations, never across an evaluation.
type Controller struct {
	mu       sync.Mutex
	clients  map[string]*decision.ClientState
	inFlight map[string]chan struct{}

	store    *telemetry.Store
	engine   *decision.Engine
	interval time.Duration
}

func NewController(store *telemetry.Store, engine *decision.Engine, interval time.Duration) *Controller {
	if interval <= 0 {
		klog.Fatalf("tick interval must be positive, got %v", interval)
	}
	return &Controller{
		clients:  make(map[string]*decision.ClientState),
		inFlight: make(map[string]chan struct{}),
		store:    store,
		engine:   engine,
		interval: interval,
	}
}

// ObserveSample ingests one measurement from the testbed collaborator. The
// first sample for a client starts monitoring of the given flow.
func (c *Controller) ObserveSample(clientID, flowID string, s telemetry.Sample) {
	c.store.Record(clientID, s)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.clients[clientID]; !ok {
		c.clients[clientID] = decision.NewClientState(clientID, flowID, s.Timestamp)
		activeFlows.Set(float64(len(c.clients)))
		klog.Infof("Monitoring started for client %s flow %s", clientID, flowID)
	}
}

// EndFlow stops monitoring a client, releasing any grant and forwarding
// program it holds. It waits for an in-flight evaluation of that client
// before releasing, so the cleanup never races a tick. Unknown clients are
// ignored.
func (c *Controller) EndFlow(ctx context.Context, clientID string) {
	var st *decision.ClientState
	for {
		c.mu.Lock()
		if ch, busy := c.inFlight[clientID]; busy {
			c.mu.Unlock()
			<-ch
			continue
		}
		var ok bool
		st, ok = c.clients[clientID]
		if !ok {
			c.mu.Unlock()
			return
		}
		delete(c.clients, clientID)
		c.store.Forget(clientID)
		activeFlows.Set(float64(len(c.clients)))
		c.mu.Unlock()
		break
	}

	// The state is unreachable from the registry now; release outside the
	// lock so a slow exchange never stalls ingest.
	c.engine.Shutdown(ctx, st)
	klog.Infof("Monitoring stopped for client %s flow %s", clientID, st.FlowID)
}

// Run drives the monitor loop until the stop channel closes.
func (c *Controller) Run(stopCh <-chan struct{}) {
	klog.Infof("Starting monitor loop (tick %v)", c.interval)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			klog.Info("Monitor loop stopping")
			c.WaitIdle()
			c.shutdownAll()
			return
		case now := <-ticker.C:
			c.TickAll(context.Background(), now)
		}
	}
}

// TickAll starts one evaluation per monitored client and returns without
// waiting for them. A client whose previous evaluation is still blocked is
// skipped for this tick and picked up again once it finishes.
func (c *Controller) TickAll(ctx context.Context, now time.Time) {
	ticksTotal.Inc()

	c.mu.Lock()
	defer c.mu.Unlock()

	for id, st := range c.clients {
		if _, busy := c.inFlight[id]; busy {
			klog.Warningf("Client %s evaluation still in flight, skipping tick", id)
			continue
		}
		done := make(chan struct{})
		c.inFlight[id] = done
		go c.evaluate(ctx, st, now, done)
	}
}

// evaluate runs one client's tick and clears its in-flight slot. It is the
// only goroutine touching the state while the slot is held.
func (c *Controller) evaluate(ctx context.Context, st *decision.ClientState, now time.Time, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		delete(c.inFlight, st.ClientID)
		c.mu.Unlock()
		close(done)
	}()
	c.engine.Tick(ctx, st, now)
}

// WaitIdle blocks until no evaluation is in flight. The monitor loop drains
// through it before the final release pass; tests use it to observe a
// settled tick.
func (c *Controller) WaitIdle() {
	for {
		c.mu.Lock()
		var done chan struct{}
		for _, ch := range c.inFlight {
			done = ch
			break
		}
		c.mu.Unlock()
		if done == nil {
			return
		}
		<-done
	}
}

// shutdownAll releases every client's grant so the wireless side is not left
// holding leases for a dead controller. Callers must have drained in-flight
// evaluations first.
func (c *Controller) shutdownAll() {
	c.mu.Lock()
	states := make([]*decision.ClientState, 0, len(c.clients))
	for id, st := range c.clients {
		states = append(states, st)
		c.store.Forget(id)
		delete(c.clients, id)
	}
	activeFlows.Set(0)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, st := range states {
		c.engine.Shutdown(ctx, st)
	}
}

// State returns a copy of the client's decision record, taken once no
// evaluation is mutating it.
func (c *Controller) State(clientID string) (decision.ClientState, bool) {
	for {
		c.mu.Lock()
		if ch, busy := c.inFlight[clientID]; busy {
			c.mu.Unlock()
			<-ch
			continue
		}
		st, ok := c.clients[clientID]
		if !ok {
			c.mu.Unlock()
			return decision.ClientState{}, false
		}
		cp := *st
		c.mu.Unlock()
		return cp, true
	}
}
