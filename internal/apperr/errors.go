// Package apperr holds the error taxonomy shared by the vault layers.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrAlreadyExists   = errors.New("already exists")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// ValidationError reports malformed input. Field is empty when the failure
// is not tied to a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError.
func Invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// Validation converts an ozzo-validation result into a ValidationError.
// A nil err yields nil; errors of any other kind are returned unchanged.
func Validation(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return err
		}
		var ie validation.InternalError
		if errors.As(err, &ie) {
			return err
		}
		return &ValidationError{Message: err.Error()}
	}

	fields := make([]string, 0, len(errs))
	for f, e := range errs {
		if e != nil {
			fields = append(fields, f)
		}
	}
	sort.Strings(fields)
	if len(fields) == 1 {
		return &ValidationError{Field: fields[0], Message: errs[fields[0]].Error()}
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, errs[f].Error()))
	}
	return &ValidationError{Message: strings.Join(parts, "; ")}
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
