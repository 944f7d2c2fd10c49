package telemetry

import (
	"sync"
	"time"

	"k8s.io/klog/v2"
)

// Store keeps a bounded sliding window of samples per client. The monitor
// loop is the sole writer for a given client; reads may come from any
// goroutine, so access is guarded.
type Store struct {
	mu      sync.RWMutex
	window  int
	samples map[string][]Sample
	updated map[string]time.Time
}

func NewStore(window int) *Store {
	if window < 1 {
		klog.Fatalf("telemetry window must be at least 1, got %d", window)
	}
	return &Store{
		window:  window,
		samples: make(map[string][]Sample),
		updated: make(map[string]time.Time),
	}
}

// Record appends a sample to the client's window, evicting the oldest entry
// once the window is full.
func (s *Store) Record(clientID string, sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hist := s.samples[clientID]
	hist = append(hist, sample)
	if len(hist) > s.window {
		hist = hist[len(hist)-s.window:]
	}
	s.samples[clientID] = hist
	s.updated[clientID] = time.Now()
}

// Latest returns the most recent sample for the client.
func (s *Store) Latest(clientID string) (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hist := s.samples[clientID]
	if len(hist) == 0 {
		return Sample{}, false
	}
	return hist[len(hist)-1], true
}

// History returns a copy of the client's window, oldest first.
func (s *Store) History(clientID string) []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hist := s.samples[clientID]
	out := make([]Sample, len(hist))
	copy(out, hist)
	return out
}

// StaleDuration reports how long ago the client's window was last updated.
// A client with no samples is reported as stale forever.
func (s *Store) StaleDuration(clientID string) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.updated[clientID]
	if !ok {
		return time.Duration(1<<62 - 1)
	}
	return time.Since(t)
}

// Forget drops the client's window when its flow ends.
func (s *Store) Forget(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.samples, clientID)
	delete(s.updated, clientID)
}
