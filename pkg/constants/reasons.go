package constants

// This file contains constants for decision reasons and admission
// rejection reason codes exchanged between the two controllers.

const (
	// LTE-only reasons
	ReasonQualityGood       = "quality_good"
	ReasonTelemetryMissing  = "telemetry_missing"
	ReasonCoordinatorStale  = "coordinator_unreachable"
	ReasonAdmissionRejected = "admission_rejected"
	ReasonWiFiOverloaded    = "wifi_overloaded"

	// Offloading reasons
	ReasonQualityDegraded = "quality_degraded"
	ReasonForcedOffload   = "forced_offload"
)

// Rejection reason codes carried in OffloadResponse. These are part of the
// wire schema; renaming them breaks cross-controller compatibility.
const (
	RejectUnauthorized  = "unauthorized"
	RejectClientLimit   = "client_limit"
	RejectCapacity      = "capacity"
	RejectPoolExhausted = "address_pool_exhausted"
)
