package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/g960059/maptime/internal/model"
)

// SplitValues splits a raw comma separated domain string.
func SplitValues(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func IsInterval(value string) bool {
	return strings.Contains(value, "/")
}

// HasIntervals reports whether any value is a "start/end" pair.
func HasIntervals(values []string) bool {
	for _, v := range values {
		if IsInterval(v) {
			return true
		}
	}
	return false
}

// IntervalBounds splits "start/end" (or "start/end/period"). A plain
// instant is returned as both bounds.
func IntervalBounds(value string) (start, end string) {
	parts := strings.Split(value, "/")
	if len(parts) < 2 {
		v := strings.TrimSpace(value)
		return v, v
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

// SnapValue reduces a domain value to the side selected by snap.
func SnapValue(value string, snap model.SnapType) string {
	start, end := IntervalBounds(value)
	if snap == model.SnapEnd {
		return end
	}
	return start
}

// ReduceIntervals maps interval values to their start or end per snap
// and leaves instants untouched.
func ReduceIntervals(values []string, snap model.SnapType) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, SnapValue(v, snap))
	}
	return out
}

// ParseValues parses instants, dropping values that are not timestamps.
func ParseValues(values []string) []time.Time {
	out := make([]time.Time, 0, len(values))
	for _, v := range values {
		t, err := ParseTime(v)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Instants reduces the values with snap, parses and sorts them.
func Instants(values []string, snap model.SnapType) []time.Time {
	out := ParseValues(ReduceIntervals(values, snap))
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// DomainBounds normalizes a raw domain ("v", "a--b", "a/b", "a/b/P1D"
// or "v1,...,vN" whose items may be intervals) to its first and last
// instants. For a single instant start equals end.
func DomainBounds(raw string) (start, end time.Time, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, time.Time{}, false
	}
	var first, last string
	switch {
	case strings.Contains(raw, "--"):
		parts := strings.SplitN(raw, "--", 2)
		first, last = parts[0], parts[1]
	default:
		values := SplitValues(raw)
		if len(values) == 0 {
			return time.Time{}, time.Time{}, false
		}
		first, _ = IntervalBounds(values[0])
		_, last = IntervalBounds(values[len(values)-1])
	}
	s, errS := ParseTime(first)
	e, errE := ParseTime(last)
	switch {
	case errS != nil && errE != nil:
		return time.Time{}, time.Time{}, false
	case errS != nil:
		s = e
	case errE != nil:
		e = s
	}
	if e.Before(s) {
		s, e = e, s
	}
	return s, e, true
}

// Nearest returns the value closest to target. On equal distance the
// earlier value wins for SnapStart and the later one for SnapEnd.
func Nearest(values []time.Time, target time.Time, snap model.SnapType) (time.Time, bool) {
	before, hasBefore := Before(values, target)
	after, hasAfter := After(values, target)
	return Closest(target, before, hasBefore, after, hasAfter, snap)
}

// Closest picks between the nearest candidates on each side of target.
func Closest(target, before time.Time, hasBefore bool, after time.Time, hasAfter bool, snap model.SnapType) (time.Time, bool) {
	switch {
	case !hasBefore && !hasAfter:
		return time.Time{}, false
	case !hasBefore:
		return after, true
	case !hasAfter:
		return before, true
	}
	db := target.Sub(before)
	da := after.Sub(target)
	switch {
	case db < da:
		return before, true
	case da < db:
		return after, true
	case snap == model.SnapEnd:
		return after, true
	default:
		return before, true
	}
}

// Before returns the greatest value <= target.
func Before(values []time.Time, target time.Time) (time.Time, bool) {
	var best time.Time
	found := false
	for _, v := range values {
		if v.After(target) {
			continue
		}
		if !found || v.After(best) {
			best = v
			found = true
		}
	}
	return best, found
}

// After returns the smallest value >= target.
func After(values []time.Time, target time.Time) (time.Time, bool) {
	var best time.Time
	found := false
	for _, v := range values {
		if v.Before(target) {
			continue
		}
		if !found || v.Before(best) {
			best = v
			found = true
		}
	}
	return best, found
}

// Neighbour returns the closest value strictly after (direction > 0)
// or strictly before (direction < 0) from.
func Neighbour(values []time.Time, from time.Time, direction int) (time.Time, bool) {
	var best time.Time
	found := false
	for _, v := range values {
		if (direction > 0 && !v.After(from)) || (direction < 0 && !v.Before(from)) {
			continue
		}
		if !found || (direction > 0 && v.Before(best)) || (direction < 0 && v.After(best)) {
			best = v
			found = true
		}
	}
	return best, found
}

// InRange keeps values inside r; a zero range keeps everything.
func InRange(values []time.Time, r model.TimeRange) []time.Time {
	if r.IsZero() {
		return values
	}
	out := make([]time.Time, 0, len(values))
	for _, v := range values {
		if r.Contains(v) {
			out = append(out, v)
		}
	}
	return out
}
