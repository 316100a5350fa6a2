package metrics

import (
	"math"
	"strings"

	"github.com/dustin/go-humanize"
)

// ValueKind tells clients how to render a series without inferring it from
// names or magnitudes.
type ValueKind string

const (
	KindCount    ValueKind = "count"
	KindDecimal  ValueKind = "decimal"
	KindCurrency ValueKind = "currency"
	KindPercent  ValueKind = "percent"
)

// decimalFormats maps a digit count to a go-humanize render format.
var decimalFormats = map[int]string{
	0: "#,###.",
	1: "#,###.#",
	2: "#,###.##",
	3: "#,###.###",
	4: "#,###.####",
}

// FormatInteger renders v rounded to a whole number with thousands separators.
func FormatInteger(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	return humanize.Comma(int64(math.Round(v)))
}

// FormatDecimal renders v with exactly digits fraction digits and thousands separators.
func FormatDecimal(v float64, digits int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	format, ok := decimalFormats[digits]
	if !ok {
		format = decimalFormats[2]
	}
	// humanize truncates after adding a half-unit, so hand it an already rounded value.
	v = RoundTo(v, digits)
	if v == 0 {
		v = 0 // drops negative zero
	}
	return humanize.FormatFloat(format, v)
}

// FormatUSD renders a dollar amount with up to two fraction digits, dropping
// trailing zeros: 12 -> "$12", 12.5 -> "$12.5", 0.126 -> "$0.13".
func FormatUSD(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	sign := ""
	rounded := RoundTo(v, 2)
	if rounded < 0 {
		sign = "-"
		rounded = -rounded
	}
	s := humanize.FormatFloat(decimalFormats[2], rounded)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return sign + "$" + s
}

// FormatPercent renders p on the 0..100 scale with the given digits and a % sign.
func FormatPercent(p Percent, digits int) string {
	return FormatDecimal(p.Pct100(), digits) + "%"
}

// Format renders v according to kind. Percent values are taken as 0..100.
func Format(kind ValueKind, v float64) string {
	switch kind {
	case KindCount:
		return FormatInteger(v)
	case KindDecimal:
		return FormatDecimal(v, 1)
	case KindCurrency:
		return FormatUSD(v)
	case KindPercent:
		return FormatPercent(Pct100(v), 1)
	}
	return FormatDecimal(v, 2)
}
