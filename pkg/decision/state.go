package decision

import (
	"time"

	"hetnet-offload/controller/pkg/constants"
	"hetnet-offload/controller/pkg/telemetry"
)

// ClientState is the per-client decision record. It is created when the
// client's first flow is detected, mutated only by that client's monitor
// loop, and destroyed when the flow ends.
type ClientState struct {
	ClientID string
	FlowID   string

	// Position is supplied by the emulation testbed with each sample.
	Position telemetry.Position

	// SessionStart marks the beginning of the current cellular-only
	// session; T_LTE is measured from it. It resets on every transition
	// back into LTE_ONLY.
	SessionStart time.Time

	Decision constants.Decision
	Class    constants.Class

	// Active grant, valid only while Decision == Offloading.
	GrantAddress  string
	GrantMbps     float64
	LastWiFiLoad  float64
	lastEvaluated time.Time
}

// NewClientState starts a client in LTE_ONLY with its session timer at zero.
func NewClientState(clientID, flowID string, now time.Time) *ClientState {
	return &ClientState{
		ClientID:     clientID,
		FlowID:       flowID,
		SessionStart: now,
		Decision:     constants.LTEOnly,
	}
}

// TLTE returns the elapsed cellular-only session time.
func (s *ClientState) TLTE(now time.Time) time.Duration {
	return now.Sub(s.SessionStart)
}
