package metrics

import (
	"encoding/json"
	"fmt"
)

// Convention says whether a percent value is stored as a 0..1 ratio or as 0..100.
type Convention string

const (
	ConventionRatio01 Convention = "ratio01"
	ConventionPct100  Convention = "pct100"
)

// Percent is a percentage that carries its own convention so formatting never
// has to guess the scale from the magnitude.
type Percent struct {
	Value      float64
	Convention Convention
}

// Ratio01 tags a 0..1 ratio.
func Ratio01(v float64) Percent { return Percent{Value: v, Convention: ConventionRatio01} }

// Pct100 tags a 0..100 percentage.
func Pct100(v float64) Percent { return Percent{Value: v, Convention: ConventionPct100} }

// Pct100 returns the value on the 0..100 scale.
func (p Percent) Pct100() float64 {
	if p.Convention == ConventionRatio01 {
		return p.Value * 100
	}
	return p.Value
}

// Ratio01 returns the value on the 0..1 scale.
func (p Percent) Ratio01() float64 {
	if p.Convention == ConventionRatio01 {
		return p.Value
	}
	return p.Value / 100
}

// String renders the percent with one decimal.
func (p Percent) String() string { return FormatPercent(p, 1) }

// MarshalJSON emits the 0..100 number; every percent on the wire uses that scale.
func (p Percent) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Pct100())
}

// UnmarshalJSON reads a 0..100 number.
func (p *Percent) UnmarshalJSON(data []byte) error {
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("percent: %w", err)
	}
	*p = Pct100(v)
	return nil
}
