package constants

// Event tags used in the cellular-side and wireless-side log records.

const (
	// Cellular-side events
	EventMonitor = "MONITOR"
	EventOffload = "OFFLOAD"
	EventRevert  = "REVERT"

	// Wireless-side events
	EventAccepted = "ACCEPTED"
	EventRejected = "REJECTED"
	EventReleased = "RELEASED"
)
