package schema

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// Record is implemented by every request/response type in this package.
// RecordName is the key used to look up the record's JSON Schema.
type Record interface {
	RecordName() string
	Validate() error
}

// LLMParams holds optional generation knobs forwarded to the model provider.
// A nil field means the caller did not set it; the provider default applies.
type LLMParams struct {
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty" yaml:"frequency_penalty,omitempty" mapstructure:"frequency_penalty"`
	MaxTokens        *int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" mapstructure:"max_tokens"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty" yaml:"presence_penalty,omitempty" mapstructure:"presence_penalty"`
	Temperature      *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" mapstructure:"temperature"`
	TopP             *float64 `json:"top_p,omitempty" yaml:"top_p,omitempty" mapstructure:"top_p"`
}

// RecordName implements Record.
func (LLMParams) RecordName() string { return RecordLLMParams }

// Validate implements Record. Each knob is an independent passthrough.
func (LLMParams) Validate() error { return nil }

// IsEmpty reports whether no knob is set.
func (p LLMParams) IsEmpty() bool {
	return p.FrequencyPenalty == nil &&
		p.MaxTokens == nil &&
		p.PresencePenalty == nil &&
		p.Temperature == nil &&
		p.TopP == nil
}

// Page is the extracted text of one source page.
type Page struct {
	Content       string `json:"content" yaml:"content"`
	ContentLength int    `json:"content_length" yaml:"content_length"`
	Page          int    `json:"page" yaml:"page"` // 1-indexed
}

// NewPage builds a Page with ContentLength derived from content.
func NewPage(content string, page int) Page {
	return Page{
		Content:       content,
		ContentLength: utf8.RuneCountInString(content),
		Page:          page,
	}
}

// RecordName implements Record.
func (Page) RecordName() string { return RecordPage }

// Validate checks that ContentLength matches the code point count of Content.
func (p Page) Validate() error {
	if n := utf8.RuneCountInString(p.Content); n != p.ContentLength {
		return newValidationError(RecordPage, FieldError{
			Path:     "content_length",
			Expected: fmt.Sprintf("%d", n),
			Message:  fmt.Sprintf("content_length %d does not match content length %d", p.ContentLength, n),
		})
	}
	return nil
}

// DocupieOutput is the aggregate result of processing one source file.
type DocupieOutput struct {
	CompletionTime float64 `json:"completion_time" yaml:"completion_time"` // milliseconds
	FileName       string  `json:"file_name" yaml:"file_name"`
	InputTokens    int     `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens   int     `json:"output_tokens" yaml:"output_tokens"`
	Pages          []Page  `json:"pages" yaml:"pages"`
}

// RecordName implements Record.
func (DocupieOutput) RecordName() string { return RecordDocupieOutput }

// Validate checks every page.
func (o DocupieOutput) Validate() error {
	var fieldErrs []FieldError
	for i, p := range o.Pages {
		if err := p.Validate(); err != nil {
			for _, fe := range fieldErrorsOf(err) {
				fe.Path = fmt.Sprintf("pages[%d].%s", i, fe.Path)
				fieldErrs = append(fieldErrs, fe)
			}
		}
	}
	if len(fieldErrs) > 0 {
		return newValidationError(RecordDocupieOutput, fieldErrs...)
	}
	return nil
}

// MarshalJSON renders a nil page list as an empty array.
func (o DocupieOutput) MarshalJSON() ([]byte, error) {
	type alias DocupieOutput
	a := alias(o)
	if a.Pages == nil {
		a.Pages = []Page{}
	}
	return json.Marshal(a)
}

// TotalPages returns the number of extracted pages.
func (o DocupieOutput) TotalPages() int {
	return len(o.Pages)
}

// Text joins all page contents in document order.
func (o DocupieOutput) Text() string {
	parts := make([]string, 0, len(o.Pages))
	for _, p := range o.Pages {
		parts = append(parts, p.Content)
	}
	return strings.Join(parts, "\n\n")
}

// CompletionResponse is the raw result of one model call.
type CompletionResponse struct {
	Content      string `json:"content" yaml:"content"`
	InputTokens  int    `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int    `json:"output_tokens" yaml:"output_tokens"`
}

// RecordName implements Record.
func (CompletionResponse) RecordName() string { return RecordCompletionResponse }

// Validate implements Record.
func (CompletionResponse) Validate() error { return nil }

// CompletionArgs is everything needed to request one page's completion.
// APIKey is a secret: use LogValue or String when logging.
type CompletionArgs struct {
	APIKey         string      `json:"api_key" yaml:"api_key"`
	ImagePath      string      `json:"image_path" yaml:"image_path"`
	LLMParams      *LLMParams  `json:"llm_params,omitempty" yaml:"llm_params,omitempty"`
	MaintainFormat bool        `json:"maintain_format" yaml:"maintain_format"`
	Model          ModelOption `json:"model" yaml:"model"`
	PriorPage      string      `json:"prior_page" yaml:"prior_page"`
}

// RecordName implements Record.
func (CompletionArgs) RecordName() string { return RecordCompletionArgs }

// Validate checks the model selection.
func (a CompletionArgs) Validate() error {
	if !a.Model.IsValid() {
		return newValidationError(RecordCompletionArgs, modelFieldError("model", string(a.Model)))
	}
	return nil
}

// LogValue implements slog.LogValuer without the API key.
func (a CompletionArgs) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("model", string(a.Model)),
		slog.String("image_path", a.ImagePath),
		slog.Bool("maintain_format", a.MaintainFormat),
		slog.Int("prior_page_len", utf8.RuneCountInString(a.PriorPage)),
		slog.Bool("api_key_set", a.APIKey != ""),
	}
	if a.LLMParams != nil {
		attrs = append(attrs, slog.Bool("llm_params", !a.LLMParams.IsEmpty()))
	}
	return slog.GroupValue(attrs...)
}

// String redacts the API key.
func (a CompletionArgs) String() string {
	key := ""
	if a.APIKey != "" {
		key = "[REDACTED]"
	}
	return fmt.Sprintf("CompletionArgs{model=%s image_path=%s maintain_format=%t api_key=%s}",
		a.Model, a.ImagePath, a.MaintainFormat, key)
}

// GoString redacts the API key for %#v.
func (a CompletionArgs) GoString() string {
	return a.String()
}
