package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromJSONAbsentVsNull(t *testing.T) {
	v, err := FromJSON([]byte(`{"a":null}`))
	require.NoError(t, err)

	assert.True(t, v.Field("a").IsNull())
	assert.False(t, v.Field("a").IsAbsent())
	assert.True(t, v.Field("missing").IsAbsent())
}

func TestCanonicalJSONKeySortedAndWhitespaceFree(t *testing.T) {
	v, err := FromJSON([]byte(`{"b": 1, "a": {"d": 2, "c": 3}}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"c":3,"d":2},"b":1}`, CanonicalJSON(v))
}

func TestCanonicalJSONNFCNormalizesStrings(t *testing.T) {
	// "e" + combining acute accent (NFD) vs precomposed "é" (NFC) must
	// digest identically per spec.md §9.
	nfd, err := FromJSON([]byte(`{"name":"café"}`))
	require.NoError(t, err)
	nfc, err := FromJSON([]byte(`{"name":"café"}`))
	require.NoError(t, err)
	assert.Equal(t, CanonicalJSON(nfd), CanonicalJSON(nfc))
}

func TestDigestFullRecordStableAcrossKeyOrder(t *testing.T) {
	a, err := FromJSON([]byte(`{"b":1,"a":2}`))
	require.NoError(t, err)
	b, err := FromJSON([]byte(` { "a" : 2 , "b" : 1 } `))
	require.NoError(t, err)

	da := Digest(FingerprintFullRecord, a, nil, nil)
	db := Digest(FingerprintFullRecord, b, nil, nil)
	assert.Equal(t, da, db)
	assert.Len(t, da, 64) // sha256 hex
}

func TestDigestFullRecordDiffersOnContent(t *testing.T) {
	a, err := FromJSON([]byte(`{"id":"A"}`))
	require.NoError(t, err)
	b, err := FromJSON([]byte(`{"id":"B"}`))
	require.NoError(t, err)
	assert.NotEqual(t, Digest(FingerprintFullRecord, a, nil, nil), Digest(FingerprintFullRecord, b, nil, nil))
}

func TestDigestKeysModeUsesConfiguredPathsOnly(t *testing.T) {
	paths := []string{"id"}

	d1 := Digest(FingerprintKeys, Absent(), paths, []string{"A"})
	d2 := Digest(FingerprintKeys, Absent(), paths, []string{"A"})
	assert.Equal(t, d1, d2)

	// A field outside the configured key paths must not affect the
	// digest in keys mode, even though it would in full_record mode.
	withExtra, err := FromJSON([]byte(`{"id":"A","other":1}`))
	require.NoError(t, err)
	assert.Equal(t, d1, Digest(FingerprintKeys, withExtra, paths, []string{"A"}))

	// A different value at a configured key path does change it.
	d3 := Digest(FingerprintKeys, Absent(), paths, []string{"B"})
	assert.NotEqual(t, d1, d3)
}

func TestValueNumCoercesNumericStrings(t *testing.T) {
	v, err := FromJSON([]byte(`{"n":"42"}`))
	require.NoError(t, err)
	n, ok := v.Field("n").Num()
	require.True(t, ok)
	assert.Equal(t, float64(42), n)
}

func TestValueArrayAndField(t *testing.T) {
	v, err := FromJSON([]byte(`{"rows":[{"id":1},{"id":2}]}`))
	require.NoError(t, err)
	arr, ok := v.Field("rows").Array()
	require.True(t, ok)
	require.Len(t, arr, 2)
	n, _ := arr[1].Field("id").Num()
	assert.Equal(t, float64(2), n)
}
