// Package metrics holds the pure formulas behind every KPI, trend and
// breakdown value, plus the status thresholds and display formatting that
// ship with them.
package metrics

import "math"

// DeadBandPercent is the relative change, in percent, that a trend must
// exceed before it is reported as up or down.
const DeadBandPercent = 1.0

// Direction of a trend between two consecutive points.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// Trend is the relative change between two points.
type Trend struct {
	Magnitude float64   // absolute relative change in percent
	Direction Direction // flat inside the dead-band or when previous is 0
}

// Rate returns numerator/denominator as a percent in [0,100], or 0 when the
// denominator is 0.
func Rate(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	r := numerator / denominator * 100
	switch {
	case math.IsNaN(r) || r < 0:
		return 0
	case r > 100:
		return 100
	}
	return r
}

// RatePercent is Rate tagged with the 0..100 convention.
func RatePercent(numerator, denominator float64) Percent {
	return Pct100(Rate(numerator, denominator))
}

// PerUnit returns total/count, or 0 when count is 0.
func PerUnit(total, count float64) float64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// ComputeTrend compares current against previous.
func ComputeTrend(current, previous float64) Trend {
	if previous == 0 {
		return Trend{Magnitude: 0, Direction: DirectionFlat}
	}
	change := (current - previous) / previous * 100

	direction := DirectionFlat
	if change > DeadBandPercent {
		direction = DirectionUp
	} else if change < -DeadBandPercent {
		direction = DirectionDown
	}
	return Trend{Magnitude: math.Abs(change), Direction: direction}
}

// LastTwoTrend computes the trend between the final two values of a series.
// Series shorter than two points are flat.
func LastTwoTrend(values []float64) Trend {
	if len(values) < 2 {
		return Trend{Direction: DirectionFlat}
	}
	return ComputeTrend(values[len(values)-1], values[len(values)-2])
}

// RoundTo rounds v half away from zero to the given number of decimals.
func RoundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
