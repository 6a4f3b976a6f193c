package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation is wrapped by every *ValidationError.
var ErrValidation = errors.New("validation failed")

// FieldError describes one offending field.
type FieldError struct {
	// Path locates the field, e.g. "model" or "pages[1].content".
	// Empty for a bare value such as a model name.
	Path string `json:"path" yaml:"path"`
	// Expected is the declared type or allowed values, when known.
	Expected string `json:"expected,omitempty" yaml:"expected,omitempty"`
	Message  string `json:"message" yaml:"message"`
}

func (fe FieldError) String() string {
	if fe.Path == "" {
		return fe.Message
	}
	return fe.Path + ": " + fe.Message
}

// ValidationError reports why untyped input could not become a record.
type ValidationError struct {
	Record string       `json:"record" yaml:"record"`
	Fields []FieldError `json:"fields" yaml:"fields"`
}

func newValidationError(record string, fields ...FieldError) *ValidationError {
	return &ValidationError{Record: record, Fields: fields}
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, fe := range e.Fields {
		parts[i] = fe.String()
	}
	return fmt.Sprintf("invalid %s: %s", e.Record, strings.Join(parts, "; "))
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Field returns the first error at path, if any.
func (e *ValidationError) Field(path string) (FieldError, bool) {
	for _, fe := range e.Fields {
		if fe.Path == path {
			return fe, true
		}
	}
	return FieldError{}, false
}

// IsValidationError reports whether err carries a *ValidationError.
func IsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

func fieldErrorsOf(err error) []FieldError {
	if ve, ok := IsValidationError(err); ok {
		return ve.Fields
	}
	return []FieldError{{Message: err.Error()}}
}
