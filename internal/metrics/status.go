package metrics

// Status of a KPI against its thresholds.
type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusDanger  Status = "danger"
)

// Threshold classifies a value. For higher-is-better metrics Warning and
// Danger are floors; with Inverse set they are ceilings.
type Threshold struct {
	Warning float64
	Danger  float64
	Inverse bool
}

// Floors builds a higher-is-better threshold.
func Floors(warning, danger float64) Threshold {
	return Threshold{Warning: warning, Danger: danger}
}

// Ceilings builds a lower-is-better threshold.
func Ceilings(warning, danger float64) Threshold {
	return Threshold{Warning: warning, Danger: danger, Inverse: true}
}

// Evaluate returns the status of v. Boundaries are inclusive on the bad side.
func (t Threshold) Evaluate(v float64) Status {
	if t.Inverse {
		switch {
		case v >= t.Danger:
			return StatusDanger
		case v >= t.Warning:
			return StatusWarning
		}
		return StatusSuccess
	}
	switch {
	case v <= t.Danger:
		return StatusDanger
	case v <= t.Warning:
		return StatusWarning
	}
	return StatusSuccess
}

// ShareOfTotal is a threshold whose floors are fractions of a total, such as
// DAU against the registered user count. A zero total always succeeds.
func ShareOfTotal(v, total, warningShare, dangerShare float64) Status {
	if total <= 0 {
		return StatusSuccess
	}
	return Floors(total*warningShare, total*dangerShare).Evaluate(v)
}
