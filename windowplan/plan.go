// Package windowplan computes the time range (if any) for one scrape
// tick and splits it into the parallel sub-windows the engine issues
// requests for (spec.md §4.5). It is pure: given the current time,
// persisted last-success, and a source's range configuration, it
// returns a deterministic plan with no side effects of its own.
package windowplan

import (
	"fmt"
	"time"

	"eve.evalgo.org/otelscrape/config"
	"eve.evalgo.org/otelscrape/timeutil"
)

// Unit is one HTTP request's worth of work: either unbounded
// (instant) or a half-open [Start, End) sub-window with the query
// parameters to attach.
type Unit struct {
	Start, End time.Time
	HasWindow  bool

	// Query holds the time-key (or relative-key) query parameters to
	// attach to the request, already formatted as strings.
	Query map[string]string
}

// Plan is the outcome of planning one tick.
type Plan struct {
	Skip bool // true when the tick was dropped due to overlap policy
	Units []Unit
	// OuterEnd is the value last-success should advance to if every
	// unit in Units succeeds. Zero value for instant/relative sources,
	// which never persist last-success.
	OuterEnd time.Time
	AdvancesLastSuccess bool
}

// Plan computes the work units for one tick.
//
// now is injected rather than read from time.Now() so planning is
// deterministic and testable; lastSuccess is the persisted value for
// this source (zero time if none yet), and inFlight reports whether a
// previous tick for this source is still running.
func Plan(src config.Source, now, lastSuccess time.Time, hasLastSuccess bool, allowOverlap, inFlight bool, defaultTimeFormat string) (Plan, error) {
	switch src.Mode {
	case "", "instant":
		return Plan{
			Units: []Unit{{Query: buildQuery(src.ExtraArgs)}},
		}, nil
	case "range":
		if src.RangeKeys.Kind == "relative" {
			return planRelative(src, now)
		}
		return planExplicit(src, now, lastSuccess, hasLastSuccess, allowOverlap, inFlight, defaultTimeFormat)
	default:
		return Plan{}, fmt.Errorf("windowplan: unknown source mode %q", src.Mode)
	}
}

func buildQuery(extra map[string]string) map[string]string {
	q := make(map[string]string, len(extra))
	for k, v := range extra {
		q[k] = v
	}
	return q
}

func planExplicit(src config.Source, now, lastSuccess time.Time, hasLastSuccess, allowOverlap, inFlight bool, defaultTimeFormat string) (Plan, error) {
	if !allowOverlap && inFlight {
		return Plan{Skip: true}, nil
	}

	start, err := resolveStart(src, now, lastSuccess, hasLastSuccess)
	if err != nil {
		return Plan{}, err
	}
	end := now
	if !start.Before(end) {
		// Nothing new to scrape; emit zero units but still allow
		// last-success to hold at its current value.
		return Plan{AdvancesLastSuccess: false}, nil
	}

	subwindow, err := src.ParallelWindow.Duration()
	if err != nil {
		return Plan{}, err
	}
	slices := timeutil.WindowSlices(start, end, subwindow)

	format := src.TimeFormat
	if format == "" {
		format = defaultTimeFormat
	}

	units := make([]Unit, 0, len(slices))
	for _, s := range slices {
		q := buildQuery(src.ExtraArgs)
		q[src.RangeKeys.StartKey] = timeutil.Format(s[0], format)
		q[src.RangeKeys.EndKey] = timeutil.Format(s[1], format)
		units = append(units, Unit{Start: s[0], End: s[1], HasWindow: true, Query: q})
	}

	return Plan{
		Units:               units,
		OuterEnd:            end,
		AdvancesLastSuccess: true,
	}, nil
}

func resolveStart(src config.Source, now, lastSuccess time.Time, hasLastSuccess bool) (time.Time, error) {
	if hasLastSuccess {
		return lastSuccess, nil
	}
	if src.RangeKeys.FirstScrapeStart != "" {
		format := src.TimeFormat
		t, err := timeutil.Parse(src.RangeKeys.FirstScrapeStart, pickFormat(format))
		if err != nil {
			return time.Time{}, fmt.Errorf("windowplan: parse firstScrapeStart: %w", err)
		}
		return t, nil
	}
	freq, err := timeutil.ParseFrequency(src.Frequency)
	if err != nil {
		return time.Time{}, fmt.Errorf("windowplan: parse frequency: %w", err)
	}
	return now.Add(-freq), nil
}

func pickFormat(format string) string {
	if format == "" {
		return time.RFC3339
	}
	return format
}

func planRelative(src config.Source, now time.Time) (Plan, error) {
	value := src.RangeKeys.RelativeValue
	if value == "from-config" {
		freq, err := timeutil.ParseFrequency(src.Frequency)
		if err != nil {
			return Plan{}, fmt.Errorf("windowplan: parse frequency: %w", err)
		}
		count, err := unitsFromDuration(src.RangeKeys.RelativeUnit, freq)
		if err != nil {
			return Plan{}, err
		}
		value = fmt.Sprintf("%d", count)
	}
	if src.RangeKeys.RelativeTakeNegative && value != "" && value[0] != '-' {
		value = "-" + value
	}

	q := buildQuery(src.ExtraArgs)
	q[src.RangeKeys.RelativeUnit] = value

	return Plan{
		Units: []Unit{{Query: q}},
	}, nil
}

// unitsFromDuration converts a frequency duration into an integer
// count of the named unit (e.g. unit "days", freq 48h -> 2), rounding
// down and never below 1. The relative-key grammar names a query
// parameter after the unit (spec.md §4.5's "<unit>=<value>"), so
// "from-config" values are derived by asking how many whole units fit
// in the configured frequency.
func unitsFromDuration(unit string, freq time.Duration) (int, error) {
	perUnit, err := parseUnitDuration(unit)
	if err != nil {
		return 0, err
	}
	n := int(freq / perUnit)
	if n < 1 {
		n = 1
	}
	return n, nil
}

func parseUnitDuration(unit string) (time.Duration, error) {
	return config.ParallelWindowConfig{Unit: unit, Value: 1}.Duration()
}
