package config

import (
	"fmt"
	"sort"

	"github.com/jackzampolin/docupie/internal/schema"
)

// Provider types understood by the provider registry.
const (
	ProviderTypeOpenAI = "openai"
	ProviderTypeOllama = "ollama"
)

// Config holds docupie configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Providers map[string]ProviderCfg `mapstructure:"providers" yaml:"providers"`
	Defaults  DefaultsCfg            `mapstructure:"defaults" yaml:"defaults"`
}

// ProviderCfg configures a model provider.
type ProviderCfg struct {
	Type           string   `mapstructure:"type" yaml:"type"`                       // "openai", "ollama"
	APIKey         string   `mapstructure:"api_key" yaml:"api_key"`                 // API key (supports ${ENV_VAR} syntax)
	BaseURL        string   `mapstructure:"base_url" yaml:"base_url"`               // Empty uses the provider default
	Models         []string `mapstructure:"models" yaml:"models"`                   // Model options served by this provider
	TimeoutSeconds int      `mapstructure:"timeout_seconds" yaml:"timeout_seconds"` // HTTP timeout
	MaxRetries     int      `mapstructure:"max_retries" yaml:"max_retries"`         // Transport-level retries
	Enabled        bool     `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies defaults for the process command.
type DefaultsCfg struct {
	Model          string            `mapstructure:"model" yaml:"model"`
	MaintainFormat bool              `mapstructure:"maintain_format" yaml:"maintain_format"`
	DPI            int               `mapstructure:"dpi" yaml:"dpi"`                       // Page render resolution
	KeepImages     bool              `mapstructure:"keep_images" yaml:"keep_images"`       // Keep rendered page images after a run
	Retries        int               `mapstructure:"retries" yaml:"retries"`               // Attempts per page
	RetryDelayMS   int               `mapstructure:"retry_delay_ms" yaml:"retry_delay_ms"` // Base backoff delay
	LLMParams      *schema.LLMParams `mapstructure:"llm_params" yaml:"llm_params,omitempty"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Providers: map[string]ProviderCfg{
			"openai": {
				Type:           ProviderTypeOpenAI,
				APIKey:         "${OPENAI_API_KEY}",
				Models:         []string{string(schema.ModelGPT4o), string(schema.ModelGPT4oMini)},
				TimeoutSeconds: 300,
				MaxRetries:     2,
				Enabled:        true,
			},
			"ollama": {
				Type:           ProviderTypeOllama,
				BaseURL:        "http://localhost:11434",
				Models:         []string{string(schema.ModelLlava), string(schema.ModelLlama32Vision)},
				TimeoutSeconds: 600,
				MaxRetries:     2,
				Enabled:        true,
			},
		},
		Defaults: DefaultsCfg{
			Model:        string(schema.ModelGPT4oMini),
			DPI:          300,
			Retries:      3,
			RetryDelayMS: 1000,
		},
	}
}

// Validate performs sanity checks on the configuration.
func (c *Config) Validate() error {
	if _, err := schema.ParseModelOption(c.Defaults.Model); err != nil {
		return fmt.Errorf("defaults.model: %w", err)
	}
	if c.Defaults.DPI <= 0 {
		return fmt.Errorf("defaults.dpi must be positive, got %d", c.Defaults.DPI)
	}
	if c.Defaults.Retries <= 0 {
		return fmt.Errorf("defaults.retries must be positive, got %d", c.Defaults.Retries)
	}
	if c.Defaults.RetryDelayMS < 0 {
		return fmt.Errorf("defaults.retry_delay_ms must not be negative, got %d", c.Defaults.RetryDelayMS)
	}

	served := make(map[string]string)
	for name, p := range c.Providers {
		switch p.Type {
		case ProviderTypeOpenAI, ProviderTypeOllama:
		default:
			return fmt.Errorf("provider %s: type %q must be one of %q or %q", name, p.Type, ProviderTypeOpenAI, ProviderTypeOllama)
		}
		if !p.Enabled {
			continue
		}
		for _, m := range p.Models {
			if _, err := schema.ParseModelOption(m); err != nil {
				return fmt.Errorf("provider %s: %w", name, err)
			}
			if other, ok := served[m]; ok {
				return fmt.Errorf("model %s is served by both %s and %s", m, other, name)
			}
			served[m] = name
		}
	}
	return nil
}

// GetProvider returns a provider config by name.
func (c *Config) GetProvider(name string) (ProviderCfg, bool) {
	cfg, ok := c.Providers[name]
	return cfg, ok
}

// EnabledProviders returns all enabled providers.
func (c *Config) EnabledProviders() map[string]ProviderCfg {
	result := make(map[string]ProviderCfg)
	for name, cfg := range c.Providers {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// ProviderFor returns the enabled provider serving model. When several do,
// the first by name wins, matching the provider registry.
func (c *Config) ProviderFor(model schema.ModelOption) (string, ProviderCfg, bool) {
	enabled := c.EnabledProviders()
	names := make([]string, 0, len(enabled))
	for name := range enabled {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cfg := enabled[name]
		for _, m := range cfg.Models {
			if m == string(model) {
				return name, cfg, true
			}
		}
	}
	return "", ProviderCfg{}, false
}

// ResolveAPIKey returns the expanded API key for the provider serving model.
func (c *Config) ResolveAPIKey(model schema.ModelOption) string {
	_, cfg, ok := c.ProviderFor(model)
	if !ok {
		return ""
	}
	return ResolveEnvVars(cfg.APIKey)
}

// Redacted returns a copy safe to print. Literal API keys are masked;
// ${ENV_VAR} references are kept since they name no secret.
func (c *Config) Redacted() *Config {
	out := *c
	out.Providers = make(map[string]ProviderCfg, len(c.Providers))
	for name, p := range c.Providers {
		if p.APIKey != "" && !envVarPattern.MatchString(p.APIKey) {
			p.APIKey = "[REDACTED]"
		}
		out.Providers[name] = p
	}
	return &out
}
