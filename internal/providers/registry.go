package providers

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jackzampolin/docupie/internal/schema"
)

// Provider types accepted in ProviderConfig.Type.
const (
	TypeOpenAI = "openai"
	TypeOllama = "ollama"
)

// Registry maps model options to the clients that serve them.
// It supports config-driven instantiation, hot-reload, and provides thread-safe access.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Completer          // provider name -> client
	configs map[string]ProviderConfig     // provider name -> config the client was built from
	models  map[schema.ModelOption]string // model -> provider name
	logger  *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]Completer),
		configs: make(map[string]ProviderConfig),
		models:  make(map[schema.ModelOption]string),
		logger:  slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register adds a client serving the given models, replacing any provider
// previously registered under name.
func (r *Registry) Register(name string, client Completer, models ...schema.ModelOption) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregisterLocked(name)
	r.clients[name] = client
	for _, m := range models {
		r.models[m] = name
	}
	if r.logger != nil {
		r.logger.Info("registered provider", "name", name, "models", models)
	}
}

// Unregister removes a provider and the models it served.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[name]; !ok {
		return
	}
	r.unregisterLocked(name)
	if r.logger != nil {
		r.logger.Info("unregistered provider", "name", name)
	}
}

func (r *Registry) unregisterLocked(name string) {
	delete(r.clients, name)
	delete(r.configs, name)
	for m, owner := range r.models {
		if owner == name {
			delete(r.models, m)
		}
	}
}

// ForModel returns the client serving model.
func (r *Registry) ForModel(model schema.ModelOption) (Completer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.models[model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	return r.clients[name], nil
}

// Get returns a client by provider name.
func (r *Registry) Get(name string) (Completer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", name)
	}
	return client, nil
}

// Models returns the served model options in sorted order.
func (r *Registry) Models() []schema.ModelOption {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schema.ModelOption, 0, len(r.models))
	for m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ProviderFor returns the name of the provider serving model.
func (r *Registry) ProviderFor(model schema.ModelOption) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.models[model]
	return name, ok
}

// List returns all registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegistryConfig defines the providers to instantiate from config.
// This mirrors the config.Config structure for provider setup.
type RegistryConfig struct {
	Providers map[string]ProviderConfig
}

// ProviderConfig matches config.ProviderCfg with resolved API key.
type ProviderConfig struct {
	Type       string // "openai", "ollama"
	APIKey     string // Resolved API key
	BaseURL    string
	Models     []schema.ModelOption
	Timeout    time.Duration
	MaxRetries int
	Enabled    bool
}

// usable reports whether the provider can be instantiated. Hosted providers
// without a configured key are still registered; calls then need a per-call key.
func (c ProviderConfig) usable() bool {
	return c.Enabled && len(c.Models) > 0
}

// NewRegistryFromConfig creates a registry with providers based on configuration.
// Only enabled providers with at least one model are registered.
func NewRegistryFromConfig(cfg RegistryConfig) *Registry {
	r := NewRegistry()
	r.Reload(cfg)
	return r
}

// Reload updates the registry based on new configuration.
// Providers that are no longer configured will be unregistered.
// Providers with changed settings will be re-registered.
func (r *Registry) Reload(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[string]bool)
	r.models = make(map[schema.ModelOption]string)

	// Deterministic order so a model claimed twice always lands on the same provider.
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		provCfg := cfg.Providers[name]
		if !provCfg.usable() {
			continue
		}
		if provCfg.Type == TypeOpenAI && provCfg.APIKey == "" && r.logger != nil {
			r.logger.Warn("hosted provider has no API key; calls must supply one", "name", name)
		}

		_, hasExisting := r.clients[name]
		if !hasExisting || needsUpdate(r.configs[name], provCfg) {
			client := createClient(provCfg)
			if client == nil {
				if r.logger != nil {
					r.logger.Warn("unknown provider type", "name", name, "type", provCfg.Type)
				}
				continue
			}
			r.unregisterLocked(name)
			r.clients[name] = client
			r.configs[name] = provCfg
			if r.logger != nil {
				if hasExisting {
					r.logger.Info("updated provider", "name", name, "type", provCfg.Type)
				} else {
					r.logger.Info("registered provider", "name", name, "type", provCfg.Type)
				}
			}
		}
		want[name] = true

		for _, m := range provCfg.Models {
			if owner, taken := r.models[m]; taken && owner != name {
				if r.logger != nil {
					r.logger.Warn("model already served", "model", m, "provider", owner, "ignored", name)
				}
				continue
			}
			r.models[m] = name
		}
	}

	// Remove providers that are no longer configured
	for name := range r.clients {
		if !want[name] {
			r.unregisterLocked(name)
			if r.logger != nil {
				r.logger.Info("unregistered provider", "name", name)
			}
		}
	}
}

// createClient creates a client based on provider type.
func createClient(cfg ProviderConfig) Completer {
	switch cfg.Type {
	case TypeOpenAI:
		return NewOpenAIClient(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			MaxRetries: cfg.MaxRetries,
			Timeout:    cfg.Timeout,
		})
	case TypeOllama:
		return NewOllamaClient(OllamaConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			MaxRetries: cfg.MaxRetries,
			Timeout:    cfg.Timeout,
		})
	default:
		return nil
	}
}

// needsUpdate checks if a client needs to be recreated.
// Model lists are not compared; they only change routing.
func needsUpdate(old, cfg ProviderConfig) bool {
	return old.Type != cfg.Type ||
		old.APIKey != cfg.APIKey ||
		old.BaseURL != cfg.BaseURL ||
		old.Timeout != cfg.Timeout ||
		old.MaxRetries != cfg.MaxRetries
}
