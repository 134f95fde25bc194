package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{KindUnknown, "unknown"},
		{KindInvalidInput, "invalid_input"},
		{KindConfig, "config"},
		{KindParse, "parse"},
		{KindIO, "io"},
		{KindInternal, "internal"},
		{Kind(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.kind.String())
		})
	}
}

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "op and message and err",
			err:      &Error{Op: "compromised.Load", Message: "open list", Err: fmt.Errorf("permission denied")},
			expected: "compromised.Load: open list: permission denied",
		},
		{
			name:     "op and message",
			err:      &Error{Op: "compromised.Load", Message: "open list"},
			expected: "compromised.Load: open list",
		},
		{
			name:     "op and err",
			err:      &Error{Op: "report.Write", Err: fmt.Errorf("disk full")},
			expected: "report.Write: disk full",
		},
		{
			name:     "message and err",
			err:      &Error{Message: "open list", Err: fmt.Errorf("permission denied")},
			expected: "open list: permission denied",
		},
		{
			name:     "message only",
			err:      &Error{Message: "open list"},
			expected: "open list",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestE(t *testing.T) {
	cause := errors.New("boom")
	err := E(KindParse, "manifest.Load", "invalid JSON", cause)

	var e *Error
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, KindParse, e.Kind)
	assert.Equal(t, "manifest.Load", e.Op)
	assert.Equal(t, "invalid JSON", e.Message)
	assert.ErrorIs(t, err, cause)
}

func TestWrapPreservesKind(t *testing.T) {
	inner := E(KindIO, "report.Write", "create file")
	wrapped := Wrap(inner, "auditor.Run")

	assert.True(t, IsIOError(wrapped))
	assert.False(t, IsParseError(wrapped))
	assert.Nil(t, Wrap(nil, "noop"))
}

func TestIsHelpers(t *testing.T) {
	assert.True(t, IsConfigError(ErrMissingCompromisedList))
	assert.True(t, IsParseError(E(KindParse, "x")))
	assert.True(t, IsIOError(fmt.Errorf("outer: %w", E(KindIO, "y"))))
	assert.False(t, IsConfigError(errors.New("plain")))
	assert.True(t, errors.Is(E(KindConfig, "z"), ErrInvalidConfig))
}
