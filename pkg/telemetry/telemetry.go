package telemetry

import (
	"time"
)

// Position is the client's last known location, supplied by the emulation
// testbed. The telemetry layer records it but does not own it.
type Position struct {
	X float64
	Y float64
}

// Sample is one per-client measurement for a single monitoring tick.
// Samples are immutable once recorded.
type Sample struct {
	Timestamp          time.Time
	Position           Position
	RSSIdBm            float64
	PDR                float64
	LTEThroughputMbps  float64
	WiFiThroughputMbps float64
}

// Recorder accepts measurement samples from the testbed collaborator.
type Recorder interface {
	Record(clientID string, s Sample)
}

// HistorySource exposes the bounded measurement history the predictor
// forecasts from.
type HistorySource interface {
	Latest(clientID string) (Sample, bool)
	History(clientID string) []Sample
}
