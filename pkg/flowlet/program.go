package flowlet

import "time"

// PathID identifies one output path of a forwarding program.
type PathID int

const (
	PathLTE  PathID = 1
	PathWiFi PathID = 2
)

func (p PathID) String() string {
	switch p {
	case PathLTE:
		return "lte"
	case PathWiFi:
		return "wifi"
	default:
		return "unknown"
	}
}

// Bucket is one weighted output path of a forwarding program.
type Bucket struct {
	Path   PathID
	Weight int
}

// Program is the forwarding-program descriptor handed to the
// packet-forwarding collaborator: an ordered weighted bucket set plus the
// flowlet idle-gap threshold.
type Program struct {
	FlowID     string
	Buckets    []Bucket
	FlowletGap time.Duration
}

// Equal reports whether two programs describe the same forwarding behavior.
func (p Program) Equal(other Program) bool {
	if p.FlowID != other.FlowID || p.FlowletGap != other.FlowletGap {
		return false
	}
	if len(p.Buckets) != len(other.Buckets) {
		return false
	}
	for i := range p.Buckets {
		if p.Buckets[i] != other.Buckets[i] {
			return false
		}
	}
	return true
}

// Installer hands forwarding programs to the packet-forwarding substrate.
// Installing an identical program for a flow must be idempotent.
type Installer interface {
	Install(p Program) error
	Remove(flowID string) error
}
