// Package record models the dynamic, duck-typed JSON shapes the scraper
// pulls out of arbitrary HTTP APIs as a small tagged tree, so that path
// resolution, predicates, and digesting all consume one representation
// instead of reflecting over interface{} at every call site.
package record

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Kind tags the variant stored in a Value.
type Kind int

const (
	KindAbsent Kind = iota
	KindNull
	KindBool
	KindNum
	KindStr
	KindArr
	KindObj
)

// Value is a tagged JSON tree node. The zero Value is Absent, distinct
// from an explicit JSON null (spec.md §4.1): a path that fails to
// resolve yields Absent, while a resolved `null` stays Null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  map[string]Value
	keys []string // insertion order, for canonical encoding
}

func Absent() Value { return Value{kind: KindAbsent} }
func Null() Value   { return Value{kind: KindNull} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Num(n float64) Value { return Value{kind: KindNum, n: n} }
func Str(s string) Value { return Value{kind: KindStr, s: s} }
func Arr(items []Value) Value { return Value{kind: KindArr, arr: items} }

func Obj(pairs map[string]Value, order []string) Value {
	return Value{kind: KindObj, obj: pairs, keys: order}
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }
func (v Value) IsNull() bool   { return v.kind == KindNull }

func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) Num() (float64, bool) {
	if v.kind == KindNum {
		return v.n, true
	}
	if v.kind == KindStr {
		if f, err := strconv.ParseFloat(v.s, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func (v Value) Str() (string, bool) {
	switch v.kind {
	case KindStr:
		return v.s, true
	case KindNum:
		return strconv.FormatFloat(v.n, 'g', -1, 64), true
	case KindBool:
		return strconv.FormatBool(v.b), true
	}
	return "", false
}

func (v Value) Array() ([]Value, bool) {
	if v.kind != KindArr {
		return nil, false
	}
	return v.arr, true
}

func (v Value) Field(name string) Value {
	if v.kind != KindObj {
		return Absent()
	}
	if val, ok := v.obj[name]; ok {
		return val
	}
	return Absent()
}

func (v Value) Keys() []string {
	if v.kind != KindObj {
		return nil
	}
	return v.keys
}

// FromJSON decodes raw JSON bytes into a Value tree. Object keys are
// stored in sorted order, not source order; keys-mode fingerprint
// digests follow the configured path order, not object key order.
func FromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return Absent(), fmt.Errorf("decode json: %w", err)
	}
	return fromInterface(raw), nil
}

func fromInterface(raw interface{}) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case json.Number:
		f, _ := t.Float64()
		return Num(f)
	case float64:
		return Num(t)
	case string:
		return Str(t)
	case []interface{}:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = fromInterface(e)
		}
		return Arr(items)
	case map[string]interface{}:
		// encoding/json with UseNumber still decodes objects into a
		// map[string]interface{}, which does not preserve source key
		// order; canonical digesting (key-sorted) does not need it, and
		// keys-mode digests walk configured paths, not object order, so
		// a deterministic (sorted) fallback order is sufficient here.
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := make(map[string]Value, len(t))
		for _, k := range keys {
			obj[k] = fromInterface(t[k])
		}
		return Obj(obj, keys)
	default:
		return Absent()
	}
}

// CanonicalJSON renders v as key-sorted, whitespace-free JSON, per
// spec.md §9's canonical-digest design note.
func CanonicalJSON(v Value) string {
	var sb strings.Builder
	writeCanonical(&sb, v)
	return sb.String()
}

func writeCanonical(sb *strings.Builder, v Value) {
	switch v.kind {
	case KindAbsent, KindNull:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.b))
	case KindNum:
		sb.WriteString(strconv.FormatFloat(v.n, 'g', -1, 64))
	case KindStr:
		// NFC-normalize before encoding so the full-record digest is
		// reproducible regardless of the source's Unicode normalization
		// form (spec.md §9).
		data, _ := json.Marshal(norm.NFC.String(v.s))
		sb.Write(data)
	case KindArr:
		sb.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, e)
		}
		sb.WriteByte(']')
	case KindObj:
		keys := append([]string(nil), v.keys...)
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			kd, _ := json.Marshal(k)
			sb.Write(kd)
			sb.WriteByte(':')
			writeCanonical(sb, v.obj[k])
		}
		sb.WriteByte('}')
	}
}
