package flowlet

import (
	"fmt"
	"sync"
	"time"

	"k8s.io/klog/v2"
)

// flowState is the per-flow flowlet descriptor: last packet arrival, the
// currently assigned path, and the split weights with the smooth weighted
// round-robin counters used for reassignment.
type flowState struct {
	program     Program
	lastArrival time.Time
	seen        bool
	path        PathID
	current     []int
}

// Table tracks flowlet descriptors for all installed flows. It implements
// Installer: installing an identical program is a no-op, so re-issuing the
// same weights never duplicates entries or resets assignment state.
type Table struct {
	mu    sync.Mutex
	flows map[string]*flowState
}

func NewTable() *Table {
	return &Table{flows: make(map[string]*flowState)}
}

func (t *Table) Install(p Program) error {
	if len(p.Buckets) == 0 {
		return fmt.Errorf("program for flow %s has no buckets", p.FlowID)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if st, ok := t.flows[p.FlowID]; ok {
		if st.program.Equal(p) {
			klog.V(4).Infof("Program for flow %s unchanged, skipping install", p.FlowID)
			return nil
		}
		// Weights changed: keep arrival state so in-progress flowlets are
		// not reordered, reset only the scheduling counters.
		st.program = p
		st.current = make([]int, len(p.Buckets))
		klog.V(3).Infof("Program for flow %s updated: %v", p.FlowID, p.Buckets)
		return nil
	}

	t.flows[p.FlowID] = &flowState{
		program: p,
		current: make([]int, len(p.Buckets)),
	}
	klog.V(3).Infof("Program for flow %s installed: %v", p.FlowID, p.Buckets)
	return nil
}

func (t *Table) Remove(flowID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.flows, flowID)
	klog.V(3).Infof("Program for flow %s removed", flowID)
	return nil
}

// Assign returns the path for a packet arriving at the given time. Within a
// flowlet (arrivals closer than the configured gap) the previous assignment
// is always reused, so packets of one flowlet never reorder across paths.
// At a flowlet boundary the next path comes from smooth weighted
// round-robin over the bucket set, which is deterministic given identical
// prior state.
func (t *Table) Assign(flowID string, arrival time.Time) (PathID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.flows[flowID]
	if !ok {
		return 0, fmt.Errorf("no forwarding program installed for flow %s", flowID)
	}

	boundary := !st.seen || arrival.Sub(st.lastArrival) >= st.program.FlowletGap
	if boundary {
		st.path = st.pickPath()
	}
	st.lastArrival = arrival
	st.seen = true
	return st.path, nil
}

// pickPath advances the smooth weighted round-robin state and returns the
// selected bucket's path.
func (st *flowState) pickPath() PathID {
	total := 0
	best := -1
	for i, b := range st.program.Buckets {
		st.current[i] += b.Weight
		total += b.Weight
		if b.Weight > 0 && (best < 0 || st.current[i] > st.current[best]) {
			best = i
		}
	}
	if best < 0 {
		// All weights zero cannot happen for a validated program; fall back
		// to the first bucket.
		return st.program.Buckets[0].Path
	}
	st.current[best] -= total
	return st.program.Buckets[best].Path
}

// Program returns the installed descriptor for a flow, if any.
func (t *Table) Program(flowID string) (Program, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.flows[flowID]
	if !ok {
		return Program{}, false
	}
	return st.program, true
}
