package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches the carried code", func(t *testing.T) {
		err := New(CodeNotFound, "organization not found")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeConflict))
	})

	t.Run("sees through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("while handling request: %w", New(CodeDuplicateSlug, "slug taken"))
		assert.True(t, HasCode(err, CodeDuplicateSlug))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.False(t, HasCode(nil, CodeInternal))
	})
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeStoreUnavailable, "organization store failed")

	require.ErrorIs(t, err, cause)
	assert.Equal(t, CodeStoreUnavailable, err.Code())
	assert.Contains(t, err.Error(), "STORE_UNAVAILABLE")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeCycleDetected, CodeOf(New(CodeCycleDetected, "loop")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("untyped")))
}
