package model

import (
	"fmt"
	"strings"
	"time"
)

// Step units accepted by PlaybackSettings.StepUnit.
const (
	UnitSeconds = "seconds"
	UnitMinutes = "minutes"
	UnitHours   = "hours"
	UnitDays    = "days"
	UnitWeeks   = "weeks"
	UnitMonths  = "months"
	UnitYears   = "years"
)

func NormalizeStepUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	if u != "" && !strings.HasSuffix(u, "s") {
		u += "s"
	}
	return u
}

func ValidStepUnit(unit string) bool {
	switch NormalizeStepUnit(unit) {
	case UnitSeconds, UnitMinutes, UnitHours, UnitDays, UnitWeeks, UnitMonths, UnitYears:
		return true
	default:
		return false
	}
}

// AddStep adds n units to t. Months and years use calendar arithmetic.
func AddStep(t time.Time, n int, unit string) (time.Time, error) {
	switch NormalizeStepUnit(unit) {
	case UnitSeconds:
		return t.Add(time.Duration(n) * time.Second), nil
	case UnitMinutes:
		return t.Add(time.Duration(n) * time.Minute), nil
	case UnitHours:
		return t.Add(time.Duration(n) * time.Hour), nil
	case UnitDays:
		return t.AddDate(0, 0, n), nil
	case UnitWeeks:
		return t.AddDate(0, 0, 7*n), nil
	case UnitMonths:
		return t.AddDate(0, n, 0), nil
	case UnitYears:
		return t.AddDate(n, 0, 0), nil
	default:
		return t, fmt.Errorf("unsupported step unit %q", unit)
	}
}

// HasFixedStep reports whether the settings describe a usable fixed
// animation step.
func (s PlaybackSettings) HasFixedStep() bool {
	return s.TimeStep > 0 && ValidStepUnit(s.StepUnit)
}
