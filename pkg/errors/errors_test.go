package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "without cause",
			err:      NewValidation("subject is required"),
			expected: "VALIDATION: subject is required",
		},
		{
			name:     "with cause",
			err:      NewUnavailable("dynamodb put failed", fmt.Errorf("connection reset")),
			expected: "UNAVAILABLE: dynamodb put failed: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestWrap_PreservesType(t *testing.T) {
	inner := NewUnavailable("batch write failed", fmt.Errorf("throttled"))
	wrapped := Wrap(inner, "cache batch put")

	assert.True(t, IsUnavailable(wrapped))
	assert.Contains(t, wrapped.Error(), "cache batch put")
	assert.Contains(t, wrapped.Error(), "batch write failed")
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "anything"))
}

func TestWrap_PlainErrorBecomesInternal(t *testing.T) {
	wrapped := Wrap(fmt.Errorf("boom"), "context")
	assert.True(t, IsInternal(wrapped))
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := NewInternal("something failed", cause)
	assert.True(t, errors.Is(err, cause))
}

func TestTypePredicates(t *testing.T) {
	assert.True(t, IsValidation(NewValidation("x")))
	assert.True(t, IsNotFound(NewNotFound("x")))
	assert.False(t, IsNotFound(NewValidation("x")))
	assert.False(t, IsUnavailable(fmt.Errorf("plain")))
}
