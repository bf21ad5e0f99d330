package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesKindAndUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(Network, "do_request", "request failed", cause)
	require.Error(t, err)

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, Network, kind)
	assert.Equal(t, "do_request", Phase(err))
	assert.True(t, errors.Is(err, cause))
}

func TestNewAndWrapReturnNilForNilCause(t *testing.T) {
	assert.NoError(t, New(Config, "resolve_path", nil))
	assert.NoError(t, Wrap(Config, "resolve_path", "resolve configuration path", nil))
}

func TestKindOfFalseForPlainError(t *testing.T) {
	_, ok := KindOf(fmt.Errorf("plain"))
	assert.False(t, ok)
	assert.Equal(t, "", Phase(fmt.Errorf("plain")))
}

func TestKindOfSeesThroughAdditionalWrapping(t *testing.T) {
	base := New(Store, "dedup_seen", errors.New("db locked"))
	wrapped := fmt.Errorf("pipeline: %w", base)

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, Store, kind)
}
