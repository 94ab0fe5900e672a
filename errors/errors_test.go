package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil error", nil, ErrorTransient},
		{"connection lost", ErrConnectionLost, ErrorTransient},
		{"command timeout", ErrCommandTimeout, ErrorTransient},
		{"context deadline", context.DeadlineExceeded, ErrorTransient},
		{"protocol frame", ErrProtocolFrame, ErrorInvalid},
		{"truncated chunk", ErrTruncatedChunk, ErrorInvalid},
		{"invalid config", ErrInvalidConfig, ErrorFatal},
		{"missing config", ErrMissingConfig, ErrorFatal},
		{"unknown defaults to transient", stderrors.New("something odd"), ErrorTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestWrapTransient(t *testing.T) {
	base := stderrors.New("dial tcp: refused")
	err := WrapTransient(base, "conn", "dial", "open socket")
	require.Error(t, err)

	assert.True(t, IsTransient(err))
	assert.False(t, IsFatal(err))
	assert.Contains(t, err.Error(), "conn.dial: open socket failed")
	assert.True(t, stderrors.Is(err, base))
}

func TestWrapInvalid_PreservesChain(t *testing.T) {
	err := WrapInvalid(fmt.Errorf("bad length prefix: %w", ErrProtocolFrame),
		"wire", "Decode", "parse frame")
	require.Error(t, err)

	assert.True(t, IsInvalid(err))
	assert.True(t, stderrors.Is(err, ErrProtocolFrame))

	var ce *ClassifiedError
	require.True(t, stderrors.As(err, &ce))
	assert.Equal(t, "wire", ce.Component)
	assert.Equal(t, "Decode", ce.Operation)
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "c", "m", "a"))
	assert.NoError(t, WrapTransient(nil, "c", "m", "a"))
	assert.NoError(t, WrapInvalid(nil, "c", "m", "a"))
	assert.NoError(t, WrapFatal(nil, "c", "m", "a"))
}

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(99).String())
}
