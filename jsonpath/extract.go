// Package jsonpath resolves the dotted/indexed/sliced/expand path syntax
// described in spec.md §4.1 against a record.Value tree.
package jsonpath

import (
	"fmt"
	"strconv"
	"strings"

	"eve.evalgo.org/otelscrape/record"
)

// segment is one parsed path component.
type segment struct {
	name   string
	index  int  // used when kind == segIndex
	lo, hi int  // used when kind == segSlice
	kind   segKind
}

type segKind int

const (
	segField segKind = iota
	segIndex
	segSlice
	segExpand
)

// Path is a parsed, reusable path expression.
type Path struct {
	segments []segment
}

// Parse compiles a textual path. See spec.md §4.1 for the grammar:
// segments separated by `.`; `name`, `name[i]`, `name[i:j]`, `name[]`;
// a leading `$root.` anchor is accepted and stripped (paths are always
// root-relative in this implementation); `/.` escapes a literal dot
// inside a key name.
func Parse(path string) (*Path, error) {
	path = strings.TrimPrefix(path, "$root.")
	if path == "" {
		return &Path{}, nil
	}

	parts := splitUnescaped(path)
	segs := make([]segment, 0, len(parts))
	for _, part := range parts {
		seg, err := parseSegment(part)
		if err != nil {
			return nil, fmt.Errorf("jsonpath: %q: %w", path, err)
		}
		segs = append(segs, seg)
	}
	return &Path{segments: segs}, nil
}

// splitUnescaped splits on "." but treats "/." as a literal dot, not a
// separator.
func splitUnescaped(path string) []string {
	var parts []string
	var cur strings.Builder
	for i := 0; i < len(path); i++ {
		if path[i] == '/' && i+1 < len(path) && path[i+1] == '.' {
			cur.WriteByte('.')
			i++
			continue
		}
		if path[i] == '.' {
			parts = append(parts, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(path[i])
	}
	parts = append(parts, cur.String())
	return parts
}

func parseSegment(part string) (segment, error) {
	open := strings.IndexByte(part, '[')
	if open < 0 {
		return segment{name: part, kind: segField}, nil
	}
	if !strings.HasSuffix(part, "]") {
		return segment{}, fmt.Errorf("unterminated bracket in %q", part)
	}
	name := part[:open]
	inner := part[open+1 : len(part)-1]

	if inner == "" {
		return segment{name: name, kind: segExpand}, nil
	}
	if colon := strings.IndexByte(inner, ':'); colon >= 0 {
		loStr, hiStr := inner[:colon], inner[colon+1:]
		lo, err := strconv.Atoi(loStr)
		if err != nil {
			return segment{}, fmt.Errorf("invalid slice start in %q", part)
		}
		hi, err := strconv.Atoi(hiStr)
		if err != nil {
			return segment{}, fmt.Errorf("invalid slice end in %q", part)
		}
		return segment{name: name, kind: segSlice, lo: lo, hi: hi}, nil
	}
	idx, err := strconv.Atoi(inner)
	if err != nil {
		return segment{}, fmt.Errorf("invalid index in %q", part)
	}
	return segment{name: name, kind: segIndex, index: idx}, nil
}

// Resolve applies the path against root and returns either a single
// value (record.Absent() on failure) or, if any segment used `[]`
// expansion or an `[i:j]` slice, a flattened sequence.
func (p *Path) Resolve(root record.Value) (record.Value, []record.Value, bool) {
	results := resolveAll(root, p.segments)
	if !containsExpand(p.segments) {
		if len(results) == 0 {
			return record.Absent(), nil, false
		}
		return results[0], nil, false
	}
	return record.Absent(), results, true
}

func containsExpand(segs []segment) bool {
	for _, s := range segs {
		if s.kind == segExpand || s.kind == segSlice {
			return true
		}
	}
	return false
}

func resolveAll(root record.Value, segs []segment) []record.Value {
	cur := []record.Value{root}
	for _, seg := range segs {
		var next []record.Value
		for _, v := range cur {
			next = append(next, applySegment(v, seg)...)
		}
		cur = next
		if len(cur) == 0 {
			return nil
		}
	}
	return cur
}

func applySegment(v record.Value, seg segment) []record.Value {
	if seg.name != "" {
		v = v.Field(seg.name)
	}
	if v.IsAbsent() {
		return nil
	}

	switch seg.kind {
	case segField:
		return []record.Value{v}
	case segIndex:
		arr, ok := v.Array()
		if !ok || seg.index < 0 || seg.index >= len(arr) {
			return nil
		}
		return []record.Value{arr[seg.index]}
	case segSlice:
		arr, ok := v.Array()
		if !ok {
			return nil
		}
		lo, hi := seg.lo, seg.hi
		if lo < 0 {
			lo = 0
		}
		if hi > len(arr) {
			hi = len(arr)
		}
		if lo >= hi {
			return nil
		}
		out := make([]record.Value, 0, hi-lo)
		for _, e := range arr[lo:hi] {
			out = append(out, e)
		}
		return out
	case segExpand:
		arr, ok := v.Array()
		if !ok {
			return nil
		}
		return arr
	}
	return nil
}

// Extract is a convenience wrapper used throughout the pipeline and
// telemetry mapper: it parses and resolves in one call and reports
// whether the path yielded a sequence.
func Extract(root record.Value, path string) (record.Value, []record.Value, bool, error) {
	p, err := Parse(path)
	if err != nil {
		return record.Absent(), nil, false, err
	}
	single, seq, isSeq := p.Resolve(root)
	return single, seq, isSeq, nil
}
