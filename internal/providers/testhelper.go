package providers

import (
	"os"

	"github.com/jackzampolin/docupie/internal/schema"
)

// TestConfig holds provider configurations loaded from environment variables.
// This allows tests to use the same configuration pattern as production.
type TestConfig struct {
	OpenAIAPIKey  string
	OllamaBaseURL string
}

// LoadTestConfig loads provider settings from environment variables.
// Returns a TestConfig with whatever settings are available.
func LoadTestConfig() TestConfig {
	return TestConfig{
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OllamaBaseURL: os.Getenv("OLLAMA_HOST"),
	}
}

// HasOpenAI returns true if an OpenAI API key is configured.
func (c TestConfig) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

// HasOllama returns true if an Ollama server address is configured.
func (c TestConfig) HasOllama() bool {
	return c.OllamaBaseURL != ""
}

// ToRegistryConfig converts test config to a RegistryConfig for the provider registry.
// Only includes providers that are configured.
func (c TestConfig) ToRegistryConfig() RegistryConfig {
	cfg := RegistryConfig{
		Providers: make(map[string]ProviderConfig),
	}

	if c.HasOpenAI() {
		cfg.Providers["openai"] = ProviderConfig{
			Type:    TypeOpenAI,
			APIKey:  c.OpenAIAPIKey,
			Models:  []schema.ModelOption{schema.ModelGPT4oMini},
			Enabled: true,
		}
	}

	if c.HasOllama() {
		cfg.Providers["ollama"] = ProviderConfig{
			Type:    TypeOllama,
			BaseURL: c.OllamaBaseURL,
			Models:  []schema.ModelOption{schema.ModelLlava},
			Enabled: true,
		}
	}

	return cfg
}
