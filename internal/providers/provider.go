package providers

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"

	"github.com/jackzampolin/docupie/internal/schema"
)

// Completer turns one page image into markdown.
type Completer interface {
	// Complete sends the page image in args to the model and returns its text.
	Complete(ctx context.Context, args schema.CompletionArgs) (schema.CompletionResponse, error)

	// Name returns the client identifier (e.g., "openai").
	Name() string
}

const (
	// SystemPrompt is sent with every page.
	SystemPrompt = "Convert the following page image to markdown. " +
		"Return only the markdown with no explanation text. " +
		"Do not exclude any content from the page."

	consistencyPromptFormat = "Markdown must maintain consistent formatting with the following page: \n\n\"\"\"%s\"\"\""
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "system", "user"
	Content string `json:"content"`
}

// SystemMessages returns the system prompts for a completion. The prior page
// is only included when format consistency was requested.
func SystemMessages(args schema.CompletionArgs) []Message {
	msgs := []Message{{Role: "system", Content: SystemPrompt}}
	if args.MaintainFormat && args.PriorPage != "" {
		msgs = append(msgs, Message{
			Role:    "system",
			Content: fmt.Sprintf(consistencyPromptFormat, args.PriorPage),
		})
	}
	return msgs
}

// pageImage is a page image loaded from disk.
type pageImage struct {
	data     []byte
	mimeType string
}

func loadPageImage(path string) (*pageImage, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: image path is required", errMissingImage)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMissingImage, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", errMissingImage, path)
	}
	return &pageImage{
		data:     data,
		mimeType: http.DetectContentType(data),
	}, nil
}

func (p *pageImage) base64() string {
	return base64.StdEncoding.EncodeToString(p.data)
}

func (p *pageImage) dataURL() string {
	return "data:" + p.mimeType + ";base64," + p.base64()
}
