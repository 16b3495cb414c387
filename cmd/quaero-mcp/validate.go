package main

import (
	"github.com/go-playground/validator/v10"

	"github.com/ternarybob/veritas/internal/apperrors"
)

var paramValidator = validator.New()

// validateParams runs struct-tag validation over a tool's parsed Options
// and, on the first failing field, returns a field-scoped ValidationError
// instead of validator's own error type.
func validateParams(opts interface{}) error {
	if err := paramValidator.Struct(opts); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return apperrors.NewValidationError(fe.Field(), fe.Tag())
		}
		return apperrors.NewValidationError("", err.Error())
	}
	return nil
}
