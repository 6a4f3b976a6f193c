package schema

import (
	"fmt"
	"strings"
)

// ModelOption names a supported vision-language model.
type ModelOption string

const (
	ModelGPT4o         ModelOption = "gpt-4o"
	ModelGPT4oMini     ModelOption = "gpt-4o-mini"
	ModelLlava         ModelOption = "llava"
	ModelLlama32Vision ModelOption = "llama3.2-vision"
)

// modelOptions is the closed set, in declaration order.
var modelOptions = []ModelOption{
	ModelGPT4o,
	ModelGPT4oMini,
	ModelLlava,
	ModelLlama32Vision,
}

// ModelOptions returns every supported model.
func ModelOptions() []ModelOption {
	out := make([]ModelOption, len(modelOptions))
	copy(out, modelOptions)
	return out
}

// ParseModelOption returns the ModelOption for s. Matching is exact.
func ParseModelOption(s string) (ModelOption, error) {
	m := ModelOption(s)
	if !m.IsValid() {
		return "", newValidationError(RecordModelOptions, modelFieldError("", s))
	}
	return m, nil
}

// IsValid reports whether m is one of the supported models.
func (m ModelOption) IsValid() bool {
	for _, opt := range modelOptions {
		if m == opt {
			return true
		}
	}
	return false
}

// RecordName implements Record.
func (ModelOption) RecordName() string { return RecordModelOptions }

// Validate implements Record.
func (m ModelOption) Validate() error {
	if !m.IsValid() {
		return newValidationError(RecordModelOptions, modelFieldError("", string(m)))
	}
	return nil
}

// IsHosted reports whether m is served by the OpenAI API.
func (m ModelOption) IsHosted() bool {
	return m == ModelGPT4o || m == ModelGPT4oMini
}

// String implements fmt.Stringer.
func (m ModelOption) String() string {
	return string(m)
}

// UnmarshalText rejects values outside the supported set.
func (m *ModelOption) UnmarshalText(text []byte) error {
	parsed, err := ParseModelOption(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (m ModelOption) MarshalText() ([]byte, error) {
	return []byte(m), nil
}

func modelFieldError(path, got string) FieldError {
	allowed := make([]string, len(modelOptions))
	for i, opt := range modelOptions {
		allowed[i] = fmt.Sprintf("%q", string(opt))
	}
	return FieldError{
		Path:     path,
		Expected: "one of " + strings.Join(allowed, ", "),
		Message:  fmt.Sprintf("unsupported model %q", got),
	}
}
