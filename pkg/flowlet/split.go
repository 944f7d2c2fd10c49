package flowlet

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidThroughput is returned when the split denominator would be zero
// or a throughput estimate is negative. Callers keep the prior forwarding
// program in that case.
var ErrInvalidThroughput = errors.New("invalid throughput input")

// WeightTotal is the fixed sum of bucket weights in a forwarding program.
const WeightTotal = 100

// Ratios computes the traffic shares for the cellular and wireless links
// proportional to their throughput estimates. A single zero-throughput link
// yields ratio 0 for that link; both zero is an input-validation error.
func Ratios(lteMbps, wifiMbps float64) (float64, float64, error) {
	if lteMbps < 0 || wifiMbps < 0 {
		return 0, 0, fmt.Errorf("%w: negative throughput (lte=%.2f wifi=%.2f)", ErrInvalidThroughput, lteMbps, wifiMbps)
	}
	total := lteMbps + wifiMbps
	if total == 0 {
		return 0, 0, fmt.Errorf("%w: zero total throughput", ErrInvalidThroughput)
	}
	return lteMbps / total, wifiMbps / total, nil
}

// splitWeights apportions WeightTotal between the two shares using the
// largest-remainder method, so the integer weights always sum exactly to
// WeightTotal regardless of rounding.
func splitWeights(a1, a2 float64) (int, int) {
	e1 := a1 * WeightTotal
	e2 := a2 * WeightTotal

	w1 := int(math.Floor(e1))
	w2 := int(math.Floor(e2))

	for rest := WeightTotal - w1 - w2; rest > 0; rest-- {
		// Ties favor the cellular bucket: its index is lower in the program.
		if e1-float64(w1) >= e2-float64(w2) {
			w1++
		} else {
			w2++
		}
	}
	return w1, w2
}

// BuildProgram computes the two-bucket forwarding program for a flow from
// the post-admission throughput estimates of both links.
func BuildProgram(flowID string, lteMbps, wifiMbps float64, gap time.Duration) (Program, error) {
	a1, a2, err := Ratios(lteMbps, wifiMbps)
	if err != nil {
		return Program{}, err
	}
	w1, w2 := splitWeights(a1, a2)
	return Program{
		FlowID: flowID,
		Buckets: []Bucket{
			{Path: PathLTE, Weight: w1},
			{Path: PathWiFi, Weight: w2},
		},
		FlowletGap: gap,
	}, nil
}
