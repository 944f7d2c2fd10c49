package constants

// Decision represents the per-client offload state.
type Decision string

const (
	LTEOnly    Decision = "LTE_ONLY"
	Offloading Decision = "OFFLOADING"
)

// Class represents a discrete link-quality class.
type Class string

const (
	Good         Class = "Good"
	Intermediate Class = "Intermediate"
	Bad          Class = "Bad"
)
