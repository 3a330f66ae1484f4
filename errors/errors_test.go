package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.class.String())
		})
	}
}

func TestClassify_DomainSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"malformed payload", Detail(ErrMalformedPayload, fmt.Errorf("unexpected character")), ErrorInvalid},
		{"transform failed", ErrTransformFailed, ErrorInvalid},
		{"relational load", ErrRelationalLoad, ErrorInvalid},
		{"schema mismatch", ErrSchemaMismatch, ErrorInvalid},
		{"invalid config", ErrInvalidConfig, ErrorFatal},
		{"destination unavailable", ErrDestinationUnavailable, ErrorTransient},
		{"deadline", context.DeadlineExceeded, ErrorTransient},
		{"unknown", fmt.Errorf("something odd"), ErrorTransient},
		{"classified wins", WrapFatal(ErrMalformedPayload, "drain", "Drain", "normalize"), ErrorFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}

func TestWrap_Format(t *testing.T) {
	base := errors.New("boom")

	err := Wrap(base, "webhook", "Start", "listen")
	require.Error(t, err)
	assert.Equal(t, "webhook.Start: listen failed: boom", err.Error())
	assert.ErrorIs(t, err, base)

	assert.NoError(t, Wrap(nil, "a", "b", "c"))
	assert.NoError(t, WrapInvalid(nil, "a", "b", "c"))
	assert.NoError(t, WrapTransient(nil, "a", "b", "c"))
	assert.NoError(t, WrapFatal(nil, "a", "b", "c"))
}

func TestWrapClassified(t *testing.T) {
	base := errors.New("boom")

	invalid := WrapInvalid(base, "transform", "Compile", "parse stylesheet")
	assert.True(t, IsInvalid(invalid))
	assert.False(t, IsTransient(invalid))
	assert.ErrorIs(t, invalid, base)

	var ce *ClassifiedError
	require.True(t, errors.As(invalid, &ce))
	assert.Equal(t, "transform", ce.Component)
	assert.Equal(t, "Compile", ce.Operation)
	assert.Equal(t, "transform.Compile: parse stylesheet failed: boom", ce.Error())

	transient := WrapTransient(base, "natsclient", "Connect", "dial")
	assert.True(t, IsTransient(transient))

	fatal := WrapFatal(base, "config", "Load", "read file")
	assert.True(t, IsFatal(fatal))
	assert.False(t, IsInvalid(fatal))
}

func TestDetail(t *testing.T) {
	cause := errors.New("line 1, column 7: unexpected '}'")
	err := Detail(ErrMalformedPayload, cause)

	assert.ErrorIs(t, err, ErrMalformedPayload)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "line 1, column 7")

	assert.Same(t, ErrMalformedPayload, Detail(ErrMalformedPayload, nil))
}

func TestRetryConfig(t *testing.T) {
	rc := DefaultRetryConfig()

	assert.True(t, rc.ShouldRetry(ErrNoConnection, 0))
	assert.False(t, rc.ShouldRetry(ErrNoConnection, rc.MaxRetries))
	assert.False(t, rc.ShouldRetry(ErrMalformedPayload, 0))
	assert.False(t, rc.ShouldRetry(nil, 0))

	cfg := rc.ToRetryConfig()
	assert.Equal(t, rc.MaxRetries+1, cfg.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialDelay)
	assert.True(t, cfg.AddJitter)
}
