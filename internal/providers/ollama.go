package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/docupie/internal/schema"
)

const (
	OllamaName           = "ollama"
	OllamaDefaultBaseURL = "http://localhost:11434"
)

// OllamaConfig holds configuration for the Ollama client.
type OllamaConfig struct {
	BaseURL    string
	APIKey     string // Sent as a bearer token when set (authenticating proxies)
	MaxRetries int    // Extra attempts on retryable transport errors
	RetryDelay time.Duration
	Timeout    time.Duration
}

// OllamaClient implements Completer against a local Ollama server.
type OllamaClient struct {
	apiKey     string
	baseURL    string
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
	client     *http.Client
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = OllamaDefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 600 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}

	return &OllamaClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		timeout:    cfg.Timeout,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name returns the provider identifier.
func (c *OllamaClient) Name() string {
	return OllamaName
}

// HealthCheck verifies the Ollama server is reachable.
func (c *OllamaClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}
	c.authorize(req, "")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}
	return nil
}

// Complete sends the page image to /api/chat.
func (c *OllamaClient) Complete(ctx context.Context, args schema.CompletionArgs) (schema.CompletionResponse, error) {
	img, err := loadPageImage(args.ImagePath)
	if err != nil {
		return schema.CompletionResponse{}, err
	}

	var messages []ollamaMessage
	for _, m := range SystemMessages(args) {
		messages = append(messages, ollamaMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, ollamaMessage{
		Role:   "user",
		Images: []string{img.base64()},
	})

	reqBody := ollamaChatRequest{
		Model:    string(args.Model),
		Messages: messages,
		Stream:   false,
		Options:  ollamaOptionsFrom(args.LLMParams),
	}

	resp, err := retry.DoWithData(
		func() (*ollamaChatResponse, error) {
			resp, err := c.doRequest(ctx, "/api/chat", reqBody, args.APIKey)
			if err != nil && !IsRetryable(err) {
				return nil, retry.Unrecoverable(err)
			}
			return resp, err
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)+1),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return schema.CompletionResponse{}, err
	}

	return schema.CompletionResponse{
		Content:      resp.Message.Content,
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
	}, nil
}

// authorize sets a bearer token when one is configured.
func (c *OllamaClient) authorize(req *http.Request, override string) {
	key := override
	if key == "" {
		key = c.apiKey
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
}

// doRequest makes an HTTP request to the Ollama API.
func (c *OllamaClient) doRequest(ctx context.Context, path string, body any, apiKey string) (*ollamaChatResponse, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	c.authorize(req, apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{
			Provider:   OllamaName,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(respBody)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
		var errResp ollamaErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			apiErr.Message = errResp.Error
		}
		return nil, apiErr
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &chatResp, nil
}

func ollamaOptionsFrom(p *schema.LLMParams) *ollamaOptions {
	if p == nil || p.IsEmpty() {
		return nil
	}
	return &ollamaOptions{
		Temperature:      p.Temperature,
		TopP:             p.TopP,
		NumPredict:       p.MaxTokens,
		FrequencyPenalty: p.FrequencyPenalty,
		PresencePenalty:  p.PresencePenalty,
	}
}

// Ollama API types

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // base64, no data URL prefix
}

type ollamaOptions struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	NumPredict       *int     `json:"num_predict,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
}

type ollamaChatResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

type ollamaErrorResponse struct {
	Error string `json:"error"`
}

var _ Completer = (*OllamaClient)(nil)
