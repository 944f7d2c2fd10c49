package quality

import (
	"hetnet-offload/controller/pkg/config"
	"hetnet-offload/controller/pkg/constants"
)

// Classifier maps forecast link metrics to a discrete quality class using
// fixed thresholds. It carries no state and is safe for concurrent use.
type Classifier struct {
	t config.Thresholds
}

func NewClassifier(t config.Thresholds) Classifier {
	return Classifier{t: t}
}

// Classify returns exactly one of Good, Intermediate, Bad.
//
// Good requires both metrics strictly above their good bounds; a metric
// sitting exactly on a good bound classifies as Intermediate. Bad is either
// metric at or below its bad bound, tested first so a link with one
// collapsed metric is never reported Intermediate.
func (c Classifier) Classify(rssiDBm, pdr float64) constants.Class {
	if rssiDBm <= c.t.RSSIBadDBm || pdr <= c.t.PDRBad {
		return constants.Bad
	}
	if rssiDBm > c.t.RSSIGoodDBm && pdr > c.t.PDRGood {
		return constants.Good
	}
	return constants.Intermediate
}

// rank orders classes for monotonicity checks: higher is better.
func rank(c constants.Class) int {
	switch c {
	case constants.Good:
		return 2
	case constants.Intermediate:
		return 1
	default:
		return 0
	}
}

// Better reports whether class a is strictly better than class b.
func Better(a, b constants.Class) bool {
	return rank(a) > rank(b)
}
