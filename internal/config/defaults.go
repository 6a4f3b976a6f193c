package config

// Entry represents a single configuration key with its default value.
type Entry struct {
	Key         string `json:"key" yaml:"key"`
	Value       any    `json:"value" yaml:"value"`
	Description string `json:"description" yaml:"description"`
}

// DefaultEntries returns the default configuration entries.
// These are registered as viper defaults so a config file only needs
// to override what differs.
func DefaultEntries() []Entry {
	return []Entry{
		// ===================
		// Providers - OpenAI
		// ===================
		{
			Key:         "providers.openai.type",
			Value:       ProviderTypeOpenAI,
			Description: "Provider type for OpenAI-hosted models",
		},
		{
			Key:         "providers.openai.api_key",
			Value:       "${OPENAI_API_KEY}",
			Description: "OpenAI API key (uses environment variable)",
		},
		{
			Key:         "providers.openai.base_url",
			Value:       "",
			Description: "Override the OpenAI API base URL (empty uses the SDK default)",
		},
		{
			Key:         "providers.openai.models",
			Value:       []string{"gpt-4o", "gpt-4o-mini"},
			Description: "Models served by OpenAI",
		},
		{
			Key:         "providers.openai.timeout_seconds",
			Value:       300,
			Description: "HTTP timeout in seconds for OpenAI requests",
		},
		{
			Key:         "providers.openai.max_retries",
			Value:       2,
			Description: "SDK-level retry attempts for failed OpenAI requests",
		},
		{
			Key:         "providers.openai.enabled",
			Value:       true,
			Description: "Whether the OpenAI provider is enabled",
		},

		// ===================
		// Providers - Ollama
		// ===================
		{
			Key:         "providers.ollama.type",
			Value:       ProviderTypeOllama,
			Description: "Provider type for locally served models",
		},
		{
			Key:         "providers.ollama.api_key",
			Value:       "",
			Description: "Bearer token for an authenticating Ollama proxy (usually empty)",
		},
		{
			Key:         "providers.ollama.base_url",
			Value:       "http://localhost:11434",
			Description: "Ollama server URL",
		},
		{
			Key:         "providers.ollama.models",
			Value:       []string{"llava", "llama3.2-vision"},
			Description: "Models served by Ollama",
		},
		{
			Key:         "providers.ollama.timeout_seconds",
			Value:       600,
			Description: "HTTP timeout in seconds for Ollama requests (local inference is slow)",
		},
		{
			Key:         "providers.ollama.max_retries",
			Value:       2,
			Description: "Retry attempts for failed Ollama requests",
		},
		{
			Key:         "providers.ollama.enabled",
			Value:       true,
			Description: "Whether the Ollama provider is enabled",
		},

		// ===================
		// Process Defaults
		// ===================
		{
			Key:         "defaults.model",
			Value:       "gpt-4o-mini",
			Description: "Model used when --model is not given",
		},
		{
			Key:         "defaults.maintain_format",
			Value:       false,
			Description: "Pass the prior page to the model so formatting stays consistent",
		},
		{
			Key:         "defaults.dpi",
			Value:       300,
			Description: "Resolution used when rendering PDF pages",
		},
		{
			Key:         "defaults.keep_images",
			Value:       false,
			Description: "Keep rendered page images after processing",
		},
		{
			Key:         "defaults.retries",
			Value:       3,
			Description: "Completion attempts per page",
		},
		{
			Key:         "defaults.retry_delay_ms",
			Value:       1000,
			Description: "Base backoff delay between page attempts in milliseconds",
		},
	}
}

// GetDefault returns the default value for a config key.
// Returns nil if no default exists for the key.
func GetDefault(key string) *Entry {
	for _, entry := range DefaultEntries() {
		if entry.Key == key {
			return &entry
		}
	}
	return nil
}
