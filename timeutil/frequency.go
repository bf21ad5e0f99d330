// Package timeutil implements the frequency grammar, strftime-style
// timestamp formatting, and window slicing described in spec.md §4.2.
package timeutil

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var freqPattern = regexp.MustCompile(`^(\d+)(s|min|h|d|w|m)$`)

// ParseFrequency parses the `<integer><unit>` grammar (s/min/h/d/w/m).
// `m` is treated as 30-day months for interval arithmetic, per
// spec.md §4.2.
func ParseFrequency(freq string) (time.Duration, error) {
	m := freqPattern.FindStringSubmatch(freq)
	if m == nil {
		return 0, fmt.Errorf("timeutil: invalid frequency %q", freq)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("timeutil: invalid frequency %q: %w", freq, err)
	}
	unit := m[2]

	var base time.Duration
	switch unit {
	case "s":
		base = time.Second
	case "min":
		base = time.Minute
	case "h":
		base = time.Hour
	case "d":
		base = 24 * time.Hour
	case "w":
		base = 7 * 24 * time.Hour
	case "m":
		base = 30 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("timeutil: unknown frequency unit %q", unit)
	}
	return time.Duration(n) * base, nil
}

// WindowSlices emits the maximal list of consecutive half-open
// intervals of size `subwindow` covering [start, end), with the final
// interval possibly shorter. If subwindow is zero or >= the full
// range, a single interval is returned (spec.md §4.2).
func WindowSlices(start, end time.Time, subwindow time.Duration) [][2]time.Time {
	if !start.Before(end) {
		return nil
	}
	if subwindow <= 0 || subwindow >= end.Sub(start) {
		return [][2]time.Time{{start, end}}
	}

	var out [][2]time.Time
	for cur := start; cur.Before(end); cur = cur.Add(subwindow) {
		next := cur.Add(subwindow)
		if next.After(end) {
			next = end
		}
		out = append(out, [2]time.Time{cur, next})
	}
	return out
}
