package record

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// FingerprintMode selects how a record's digest is computed
// (spec.md §4.3/§4.7).
type FingerprintMode int

const (
	FingerprintFullRecord FingerprintMode = iota
	FingerprintKeys
)

// unitSeparator matches the `\x1e` field separator named in spec.md
// §4.7 for keys-mode digests.
const unitSeparator = "\x1e"

// Digest computes the fingerprint digest for v. In FingerprintFullRecord
// mode it hashes the canonical (key-sorted, whitespace-free) JSON
// encoding. In FingerprintKeys mode it hashes the concatenation
// `field1=value1<unit-sep>field2=value2...` over the values resolved
// at keyValues, in the caller-supplied order — callers resolve paths
// via jsonpath and pass the rendered string values in, keeping this
// package free of a jsonpath import cycle.
func Digest(mode FingerprintMode, v Value, keyPaths []string, keyValues []string) string {
	var payload string
	switch mode {
	case FingerprintKeys:
		parts := make([]string, len(keyPaths))
		for i, p := range keyPaths {
			val := ""
			if i < len(keyValues) {
				val = keyValues[i]
			}
			parts[i] = p + "=" + val
		}
		payload = strings.Join(parts, unitSeparator)
	default:
		payload = CanonicalJSON(v)
	}

	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
