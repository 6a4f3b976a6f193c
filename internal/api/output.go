// Package api renders command results for the CLI.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// OutputFormat defines the output format for CLI commands.
type OutputFormat string

const (
	OutputFormatYAML     OutputFormat = "yaml"
	OutputFormatJSON     OutputFormat = "json"
	OutputFormatMarkdown OutputFormat = "markdown"
)

// DefaultOutput is the default output format.
var DefaultOutput OutputFormat = OutputFormatYAML

// globalOutputFormat is set by the root command's --output flag.
var globalOutputFormat OutputFormat = DefaultOutput

// Texter is implemented by results that have a plain markdown rendering,
// such as a converted document.
type Texter interface {
	Text() string
}

// ParseOutputFormat returns the format named by s. "md" is accepted for markdown.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yaml", "yml":
		return OutputFormatYAML, nil
	case "json":
		return OutputFormatJSON, nil
	case "markdown", "md":
		return OutputFormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown output format: %q (want yaml, json or markdown)", s)
	}
}

// SetOutputFormat sets the global output format.
func SetOutputFormat(format string) error {
	f, err := ParseOutputFormat(format)
	if err != nil {
		return err
	}
	globalOutputFormat = f
	return nil
}

// GetOutputFormat returns the current global output format.
func GetOutputFormat() OutputFormat {
	return globalOutputFormat
}

// Extension returns the file extension used when saving in this format.
func (f OutputFormat) Extension() string {
	switch f {
	case OutputFormatJSON:
		return "json"
	case OutputFormatMarkdown:
		return "md"
	default:
		return "yaml"
	}
}

// Output writes data to stdout in the configured format.
func Output(data any) error {
	return OutputTo(os.Stdout, globalOutputFormat, data)
}

// OutputTo writes data to the given writer in the specified format.
func OutputTo(w io.Writer, format OutputFormat, data any) error {
	switch format {
	case OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case OutputFormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	case OutputFormatMarkdown:
		t, ok := data.(Texter)
		if !ok {
			return fmt.Errorf("%T has no markdown rendering", data)
		}
		text := t.Text()
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		_, err := io.WriteString(w, text)
		return err
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

// SaveTo writes data to path in the specified format, creating or truncating it.
func SaveTo(path string, format OutputFormat, data any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := OutputTo(f, format, data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
