package telemetry

import (
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"

	"eve.evalgo.org/otelscrape/config"
	"eve.evalgo.org/otelscrape/jsonpath"
	"eve.evalgo.org/otelscrape/record"
)

// resolvedAttrs is the label set one record yields: attribute.KeyValue
// pairs for metric labels plus the raw string form, which asMetric
// conversion and log attributes both need.
type resolvedAttrs struct {
	kv  []attribute.KeyValue
	raw map[string]string
}

// resolveAttributes evaluates every attribute spec against a record.
// Absent fields are omitted from the label set (spec.md §4.8).
func resolveAttributes(rec record.Value, specs []config.AttributeSpec) (resolvedAttrs, error) {
	out := resolvedAttrs{raw: make(map[string]string, len(specs))}
	for _, spec := range specs {
		val, _, _, err := jsonpath.Extract(rec, spec.DataKey)
		if err != nil {
			return out, fmt.Errorf("telemetry: resolve attribute %q: %w", spec.Name, err)
		}
		if val.IsAbsent() {
			continue
		}
		s := stringify(val)
		out.kv = append(out.kv, attribute.String(spec.Name, s))
		out.raw[spec.Name] = s
	}
	return out, nil
}

func stringify(v record.Value) string {
	if s, ok := v.Str(); ok {
		return s
	}
	if v.IsNull() {
		return "null"
	}
	return ""
}

// resolveNumeric extracts a numeric value for a gauge/counter/histogram
// spec: fixedValue wins when set, else dataKey is resolved and must
// parse as a number. A false result means "skip this metric for this
// record" (absent field, non-numeric value, or no path configured).
func resolveNumeric(rec record.Value, dataKey string, fixedValue *float64) (float64, bool, error) {
	if fixedValue != nil {
		return *fixedValue, true, nil
	}
	if dataKey == "" {
		return 0, false, nil
	}
	val, _, _, err := jsonpath.Extract(rec, dataKey)
	if err != nil {
		return 0, false, fmt.Errorf("telemetry: resolve %q: %w", dataKey, err)
	}
	if val.IsAbsent() {
		return 0, false, nil
	}
	n, ok := val.Num()
	return n, ok, nil
}

// resolveMappedNumeric is the asMetric fallback when a raw attribute
// value has no entry in valueMapping: parse it as a number directly.
func resolveMappedNumeric(raw string) (float64, bool) {
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
