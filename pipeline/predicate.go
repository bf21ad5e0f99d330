// Package pipeline implements the record pipeline of spec.md §4.7:
// drop/keep filtering, the per-scrape record cap, and fingerprint
// dedup against a store.Store backend.
package pipeline

import (
	"fmt"
	"regexp"
	"strconv"

	"eve.evalgo.org/otelscrape/config"
	"eve.evalgo.org/otelscrape/jsonpath"
	"eve.evalgo.org/otelscrape/record"
)

// MatchPredicate evaluates one predicate against a record, per the
// grammar in spec.md §4.7: numeric equality is used when both sides
// parse as numbers, otherwise string equality; regex patterns are
// anchored at both ends unless they already contain ".*". Exported so
// the telemetry mapper can reuse it for log-severity rule matching.
func MatchPredicate(rec record.Value, p config.Predicate) (bool, error) {
	val, _, _, err := jsonpath.Extract(rec, p.Field)
	if err != nil {
		return false, fmt.Errorf("pipeline: resolve field %q: %w", p.Field, err)
	}
	if val.IsAbsent() {
		return false, nil
	}

	switch p.MatchType {
	case "equals":
		return equalsScalar(val, p.Value), nil
	case "not_equals":
		eq := equalsScalar(val, p.Value)
		return !eq, nil
	case "in":
		list, ok := p.Value.([]interface{})
		if !ok {
			return false, fmt.Errorf("pipeline: matchType 'in' requires a list value")
		}
		for _, item := range list {
			if equalsScalar(val, item) {
				return true, nil
			}
		}
		return false, nil
	case "regex":
		pattern, ok := p.Value.(string)
		if !ok {
			return false, fmt.Errorf("pipeline: matchType 'regex' requires a string value")
		}
		str, _ := val.Str()
		return matchRegex(str, pattern)
	default:
		return false, fmt.Errorf("pipeline: unknown matchType %q", p.MatchType)
	}
}

func equalsScalar(val record.Value, want interface{}) bool {
	if wantNum, ok := toFloat(want); ok {
		if gotNum, ok := val.Num(); ok {
			return gotNum == wantNum
		}
	}
	wantStr := fmt.Sprintf("%v", want)
	gotStr, ok := val.Str()
	if !ok {
		return false
	}
	return gotStr == wantStr
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func matchRegex(value, pattern string) (bool, error) {
	anchored := pattern
	if !containsDotStar(pattern) {
		anchored = "^(?:" + pattern + ")$"
	}
	re, err := regexp.Compile(anchored)
	if err != nil {
		return false, fmt.Errorf("pipeline: invalid regex %q: %w", pattern, err)
	}
	return re.MatchString(value), nil
}

func containsDotStar(pattern string) bool {
	for i := 0; i+1 < len(pattern); i++ {
		if pattern[i] == '.' && pattern[i+1] == '*' {
			return true
		}
	}
	return false
}

// matchRule reports whether every predicate in an "all" rule matches,
// or at least one predicate in an "any" rule matches.
func matchRule(rec record.Value, rule config.FilterRule, all bool) (bool, error) {
	if len(rule.Predicates) == 0 {
		return false, nil
	}
	for _, p := range rule.Predicates {
		ok, err := MatchPredicate(rec, p)
		if err != nil {
			return false, err
		}
		if all && !ok {
			return false, nil
		}
		if !all && ok {
			return true, nil
		}
	}
	return all, nil
}
