package coordinator

// SchemaVersion tags every cross-controller message. Both sides reject
// messages with a version they do not understand, and unknown fields are
// rejected rather than ignored.
const SchemaVersion = 1

// OffloadRequest asks the wireless side to admit a flow. Requests are keyed
// by (clientId, flowId) for idempotency: repeating a request while its grant
// is active returns the existing grant unchanged.
type OffloadRequest struct {
	Version       int     `json:"version"`
	ClientID      string  `json:"clientId"`
	FlowID        string  `json:"flowId"`
	BandwidthMbps float64 `json:"bandwidthMbps"`
}

// OffloadResponse is the wireless side's admission verdict. On acceptance
// it carries the allocated address, bandwidth and resulting aggregate load;
// on rejection only the reason code.
type OffloadResponse struct {
	Version       int     `json:"version"`
	Accepted      bool    `json:"accepted"`
	GrantID       string  `json:"grantId,omitempty"`
	Address       string  `json:"address,omitempty"`
	Gateway       string  `json:"gateway,omitempty"`
	BandwidthMbps float64 `json:"bandwidthMbps,omitempty"`
	Load          float64 `json:"load"`
	Reason        string  `json:"reason,omitempty"`
}

// LoadStatus is the read-only aggregate load report.
type LoadStatus struct {
	Load       float64 `json:"load"`
	Clients    int     `json:"clients"`
	MaxClients int     `json:"maxClients"`
	Timestamp  float64 `json:"timestamp"`
}
