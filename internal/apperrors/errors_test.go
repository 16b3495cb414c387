package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_ErrorMessage(t *testing.T) {
	err := NewValidationError("document_type", "required")
	assert.Equal(t, "document_type: required", err.Error())
}

func TestValidationError_NoField(t *testing.T) {
	err := NewValidationError("", "bad request")
	assert.Equal(t, "bad request", err.Error())
}

func TestValidationError_UnwrapsToSentinel(t *testing.T) {
	err := NewValidationError("field", "msg")
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestCode_MapsKnownSentinels(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{ErrValidation, CodeValidation},
		{ErrNotFound, CodeNotFound},
		{ErrPersistence, CodePersistence},
		{ErrStructuredExtractionFail, CodeStructuredExtractionFailed},
	}
	for _, c := range cases {
		assert.Equal(t, c.code, Code(c.err))
	}
}

func TestCode_WrappedError(t *testing.T) {
	wrapped := fmt.Errorf("document %s: %w", "doc-1", ErrNotFound)
	assert.Equal(t, CodeNotFound, Code(wrapped))
}

func TestCode_UnknownErrorDefaultsToGenericServerError(t *testing.T) {
	assert.Equal(t, -32000, Code(errors.New("something else")))
}
