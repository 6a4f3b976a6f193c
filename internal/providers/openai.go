package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/jackzampolin/docupie/internal/schema"
)

const OpenAIName = "openai"

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey     string        // Used when CompletionArgs carries no key
	BaseURL    string        // Optional (tests, compatible gateways)
	MaxRetries int           // Retry attempts for SDK transport
	Timeout    time.Duration // HTTP timeout
	HTTPClient *http.Client  // Optional (tests)
}

// OpenAIClient implements Completer using the official OpenAI SDK.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	maxRetries int
	timeout    time.Duration
	client     openai.Client
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		maxRetries: cfg.MaxRetries,
		timeout:    cfg.Timeout,
		client:     openai.NewClient(opts...),
	}
}

// Name returns the provider identifier.
func (c *OpenAIClient) Name() string {
	return OpenAIName
}

// Complete sends the page image as a data URL in a chat completion request.
func (c *OpenAIClient) Complete(ctx context.Context, args schema.CompletionArgs) (schema.CompletionResponse, error) {
	if args.APIKey == "" && c.apiKey == "" {
		return schema.CompletionResponse{}, fmt.Errorf("%s: %w", OpenAIName, ErrMissingAPIKey)
	}

	img, err := loadPageImage(args.ImagePath)
	if err != nil {
		return schema.CompletionResponse{}, err
	}

	var messages []openai.ChatCompletionMessageParamUnion
	for _, m := range SystemMessages(args) {
		messages = append(messages, openai.SystemMessage(m.Content))
	}
	messages = append(messages, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: img.dataURL(),
		}),
	}))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(args.Model),
		Messages: messages,
	}
	applyOpenAIParams(&params, args.LLMParams)

	var reqOpts []option.RequestOption
	if args.APIKey != "" && args.APIKey != c.apiKey {
		reqOpts = append(reqOpts, option.WithAPIKey(args.APIKey))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params, reqOpts...)
	if err != nil {
		return schema.CompletionResponse{}, mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return schema.CompletionResponse{}, fmt.Errorf("no response choices from model")
	}

	return schema.CompletionResponse{
		Content:      resp.Choices[0].Message.Content,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

// applyOpenAIParams copies only the knobs the caller set.
func applyOpenAIParams(params *openai.ChatCompletionNewParams, p *schema.LLMParams) {
	if p == nil {
		return
	}
	if p.Temperature != nil {
		params.Temperature = openai.Float(*p.Temperature)
	}
	if p.TopP != nil {
		params.TopP = openai.Float(*p.TopP)
	}
	if p.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(*p.FrequencyPenalty)
	}
	if p.PresencePenalty != nil {
		params.PresencePenalty = openai.Float(*p.PresencePenalty)
	}
	if p.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*p.MaxTokens))
	}
}

var _ Completer = (*OpenAIClient)(nil)
