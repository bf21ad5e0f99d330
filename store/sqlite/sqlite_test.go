package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fingerprints.db")
	s, err := Open(DefaultConfig(path))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLastSuccessRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.LoadLastSuccess(ctx, "demo")
	require.NoError(t, err)
	require.False(t, ok)

	end := time.Now().Truncate(time.Second)
	require.NoError(t, s.SaveLastSuccess(ctx, "demo", end))

	got, ok, err := s.LoadLastSuccess(ctx, "demo")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, end.Equal(got))

	// overwrite semantics
	later := end.Add(time.Hour)
	require.NoError(t, s.SaveLastSuccess(ctx, "demo", later))
	got2, _, err := s.LoadLastSuccess(ctx, "demo")
	require.NoError(t, err)
	require.True(t, later.Equal(got2))
}

func TestSeenInsertAndExpiry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.InsertMany(ctx, "demo", []string{"d1", "d2"}, time.Hour))

	seen, err := s.Seen(ctx, "demo", "d1")
	require.NoError(t, err)
	require.True(t, seen)

	require.NoError(t, s.InsertMany(ctx, "demo", []string{"d3"}, -time.Second))
	seen, err = s.Seen(ctx, "demo", "d3")
	require.NoError(t, err)
	require.False(t, seen, "expired entry must not be seen")
}

func TestEnforceCapUsesCreatedAtOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.InsertMany(ctx, "demo", []string{"old"}, time.Hour))
	time.Sleep(1100 * time.Millisecond)
	require.NoError(t, s.InsertMany(ctx, "demo", []string{"new"}, time.Hour))

	require.NoError(t, s.EnforceCap(ctx, "demo", 1))

	oldSeen, _ := s.Seen(ctx, "demo", "old")
	newSeen, _ := s.Seen(ctx, "demo", "new")
	require.False(t, oldSeen)
	require.True(t, newSeen)
}

func TestGCExpiredAndOrphans(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.InsertMany(ctx, "demo", []string{"expired"}, -time.Second))
	n, err := s.GCExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, s.InsertMany(ctx, "gone", []string{"x"}, time.Hour))
	require.NoError(t, s.SaveLastSuccess(ctx, "gone", time.Now()))
	require.NoError(t, s.InsertMany(ctx, "live", []string{"y"}, time.Hour))

	removed, err := s.GCOrphans(ctx, []string{"live"})
	require.NoError(t, err)
	require.Greater(t, removed, 0)

	goneSeen, _ := s.Seen(ctx, "gone", "x")
	require.False(t, goneSeen)
}
