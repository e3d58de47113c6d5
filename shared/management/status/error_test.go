package status

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromError(t *testing.T) {
	err := fmt.Errorf("find peer: %w", NewPeerNotFoundError("abc"))

	s, ok := FromError(err)
	require.True(t, ok)
	assert.Equal(t, NotFound, s.Type())
	assert.Equal(t, "abc", s.ID)

	s, ok = FromError(errors.New("plain"))
	assert.False(t, ok)
	assert.Nil(t, s)

	s, ok = FromError(nil)
	assert.True(t, ok)
	assert.Nil(t, s)
}

func TestIsMatchesTypeAnywhereInChain(t *testing.T) {
	err := NewNetworkError(3, NewServerError(503, ""))

	assert.True(t, errors.Is(err, ErrNetwork))
	assert.True(t, errors.Is(err, ErrServer))
	assert.False(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, Network, TypeOf(err))

	var s *Error
	require.True(t, errors.As(err, &s))
	assert.Equal(t, 3, s.Attempts)
}

func TestRateLimitedDefault(t *testing.T) {
	err := NewRateLimitedError(0)
	s, ok := FromError(err)
	require.True(t, ok)
	assert.Equal(t, DefaultRetryAfter, s.RetryAfter)

	err = NewRateLimitedError(5 * time.Second)
	s, _ = FromError(err)
	assert.Equal(t, 5*time.Second, s.RetryAfter)
}

func TestValidationErrorCarriesField(t *testing.T) {
	err := NewValidationError("address", "10.0.0", "not an IP address")
	s, ok := FromError(err)
	require.True(t, ok)
	assert.Equal(t, Validation, s.Type())
	assert.Equal(t, "address", s.Field)
	assert.Equal(t, "10.0.0", s.Value)
	assert.Equal(t, "validation", s.Type().String())
}

func TestNetworkErrorMessageIncludesCause(t *testing.T) {
	err := NewNetworkError(2, NewTimeoutError(time.Second, nil))
	assert.Contains(t, err.Error(), "2 attempt(s)")
	assert.Contains(t, err.Error(), "timed out")
}
