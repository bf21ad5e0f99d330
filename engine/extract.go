package engine

import (
	"eve.evalgo.org/otelscrape/jsonpath"
	"eve.evalgo.org/otelscrape/record"
)

// ExtractRecords pulls the record sequence out of one parsed response
// body, per spec.md §4.1/§4.6. An empty dataKey means the whole
// response is itself the record (or record sequence, if it happens to
// be a JSON array). A non-empty dataKey is resolved with jsonpath:
// an expand segment ("[]") already yields a flattened sequence; a
// single resolved value that is itself an array is unwrapped into its
// elements; anything else becomes a one-element sequence; an absent
// path yields no records.
func ExtractRecords(root record.Value, dataKey string) ([]record.Value, error) {
	if dataKey == "" {
		return asRecords(root), nil
	}

	single, seq, isSeq, err := jsonpath.Extract(root, dataKey)
	if err != nil {
		return nil, err
	}
	if isSeq {
		return seq, nil
	}
	if single.IsAbsent() {
		return nil, nil
	}
	return asRecords(single), nil
}

func asRecords(v record.Value) []record.Value {
	if arr, ok := v.Array(); ok {
		return arr
	}
	return []record.Value{v}
}
