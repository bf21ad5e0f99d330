package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve.evalgo.org/otelscrape/config"
	"eve.evalgo.org/otelscrape/record"
	"eve.evalgo.org/otelscrape/store/sqlite"
)

func obj(pairs map[string]record.Value) record.Value {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	return record.Obj(pairs, keys)
}

// TestFilterDropAndKeep covers spec scenario 4: three records, drop
// "skip", keep only ok/fail -> two survive.
func TestFilterDropAndKeep(t *testing.T) {
	records := []record.Value{
		obj(map[string]record.Value{"s": record.Str("ok")}),
		obj(map[string]record.Value{"s": record.Str("fail")}),
		obj(map[string]record.Value{"s": record.Str("skip")}),
	}
	filters := config.FiltersSpec{
		Drop: []config.FilterRule{{Predicates: []config.Predicate{{Field: "s", MatchType: "equals", Value: "skip"}}}},
		Keep: []config.FilterRule{{Predicates: []config.Predicate{{Field: "s", MatchType: "in", Value: []interface{}{"ok", "fail"}}}}},
	}

	out, err := applyFilters(records, filters, &Stats{})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestApplyCapZeroSuppressesAll(t *testing.T) {
	records := []record.Value{record.Str("a"), record.Str("b")}
	stats := &Stats{}
	out := applyCap(records, 0, stats)
	assert.Empty(t, out)
	assert.Equal(t, 2, stats.Capped)
}

func TestApplyCapPreservesOrder(t *testing.T) {
	records := []record.Value{record.Num(1), record.Num(2), record.Num(3)}
	out := applyCap(records, 2, &Stats{})
	require.Len(t, out, 2)
	n0, _ := out[0].Num()
	n1, _ := out[1].Num()
	assert.Equal(t, 1.0, n0)
	assert.Equal(t, 2.0, n1)
}

// TestDedupOnKeys covers spec scenario 3: two identical records by
// keys-mode fingerprint; first emits, second is dropped.
func TestDedupOnKeys(t *testing.T) {
	dir := t.TempDir()
	st, err := sqlite.Open(sqlite.DefaultConfig(dir + "/fp.db"))
	require.NoError(t, err)
	defer st.Close()

	rec := obj(map[string]record.Value{"id": record.Str("A"), "status": record.Str("ok")})
	dedup := config.DedupConfig{Enabled: true, FingerprintMode: "keys", FingerprintKeys: []string{"id"}, TTLSeconds: 60}

	ctx := context.Background()
	out1, stats1, err := Run(ctx, st, "demo", config.FiltersSpec{}, nil, dedup, 1000, []record.Value{rec})
	require.NoError(t, err)
	assert.Len(t, out1, 1)
	assert.Equal(t, 1, stats1.DedupeMisses)

	out2, stats2, err := Run(ctx, st, "demo", config.FiltersSpec{}, nil, dedup, 1000, []record.Value{rec})
	require.NoError(t, err)
	assert.Len(t, out2, 0)
	assert.Equal(t, 1, stats2.DedupeHits)
}

// TestDedupEnforcesMaxEntries covers spec.md §4.3/§4.7: after an
// insert, the fingerprint store is trimmed to maxEntries per source.
func TestDedupEnforcesMaxEntries(t *testing.T) {
	dir := t.TempDir()
	st, err := sqlite.Open(sqlite.DefaultConfig(dir + "/fp.db"))
	require.NoError(t, err)
	defer st.Close()

	dedup := config.DedupConfig{Enabled: true, FingerprintMode: "keys", FingerprintKeys: []string{"id"}, TTLSeconds: 3600}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := obj(map[string]record.Value{"id": record.Str(string(rune('A' + i)))})
		_, _, err := Run(ctx, st, "demo", config.FiltersSpec{}, nil, dedup, 2, []record.Value{rec})
		require.NoError(t, err)
	}

	// Replaying the earliest records must miss again: they were
	// evicted to keep the store at maxEntries=2.
	rec := obj(map[string]record.Value{"id": record.Str("A")})
	out, stats, err := Run(ctx, st, "demo", config.FiltersSpec{}, nil, dedup, 2, []record.Value{rec})
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, 1, stats.DedupeMisses)
}

func TestRegexAnchoring(t *testing.T) {
	rec := obj(map[string]record.Value{"name": record.Str("hello")})
	ok, err := MatchPredicate(rec, config.Predicate{Field: "name", MatchType: "regex", Value: "hello"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = MatchPredicate(rec, config.Predicate{Field: "name", MatchType: "regex", Value: "hell"})
	require.NoError(t, err)
	assert.False(t, ok, "unanchored pattern without .* must not match a prefix")
}

func TestNumericEqualityCoercion(t *testing.T) {
	rec := obj(map[string]record.Value{"count": record.Str("3")})
	ok, err := MatchPredicate(rec, config.Predicate{Field: "count", MatchType: "equals", Value: float64(3)})
	require.NoError(t, err)
	assert.True(t, ok)
}
