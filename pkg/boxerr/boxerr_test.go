package boxerr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesWrappedKind(t *testing.T) {
	t.Parallel()
	err := Wrap(Timeout, "fetch messages", errors.New("deadline exceeded"))
	wrapped := fmt.Errorf("ingest: %w", err)

	assert.True(t, Is(wrapped, Timeout))
	assert.False(t, Is(wrapped, Transport))
}

func TestIsFalseForPlainError(t *testing.T) {
	t.Parallel()
	assert.False(t, Is(errors.New("plain"), NotFound))
	assert.False(t, Is(nil, NotFound))
}

func TestKindOf(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Forbidden, KindOf(New(Forbidden, "no access")))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestRetryAfterOfOnlySetOnRateLimited(t *testing.T) {
	t.Parallel()
	err := WrapRateLimited("too many requests", 30*time.Second, errors.New("429"))
	assert.Equal(t, 30*time.Second, RetryAfterOf(err))
	assert.Equal(t, time.Duration(0), RetryAfterOf(New(Timeout, "x")))
}

func TestErrorStringIncludesCause(t *testing.T) {
	t.Parallel()
	cause := errors.New("boom")
	err := Wrap(StorageError, "insert row", cause)
	require.ErrorContains(t, err, "boom")
	require.ErrorContains(t, err, "insert row")
	assert.ErrorIs(t, err, cause)
}
