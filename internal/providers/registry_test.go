package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/docupie/internal/schema"
)

func TestRegistry(t *testing.T) {
	t.Run("register and route model", func(t *testing.T) {
		r := NewRegistry()
		mock := NewMockCompleter()

		r.Register("test", mock, schema.ModelLlava, schema.ModelLlama32Vision)

		client, err := r.ForModel(schema.ModelLlava)
		if err != nil {
			t.Fatalf("ForModel() error = %v", err)
		}
		if client != mock {
			t.Error("got different client than registered")
		}
		if name, ok := r.ProviderFor(schema.ModelLlama32Vision); !ok || name != "test" {
			t.Errorf("ProviderFor() = %s, %v", name, ok)
		}
	})

	t.Run("unknown model", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.ForModel(schema.ModelGPT4o)
		if !errors.Is(err, ErrUnknownModel) {
			t.Errorf("error = %v, want ErrUnknownModel", err)
		}
	})

	t.Run("get by name", func(t *testing.T) {
		r := NewRegistry()
		r.Register("mock", NewMockCompleter())
		if _, err := r.Get("mock"); err != nil {
			t.Errorf("Get() error = %v", err)
		}
		if _, err := r.Get("nonexistent"); err == nil {
			t.Error("expected error for nonexistent provider")
		}
	})

	t.Run("unregister drops models", func(t *testing.T) {
		r := NewRegistry()
		r.Register("test", NewMockCompleter(), schema.ModelLlava)
		r.Unregister("test")

		if _, err := r.ForModel(schema.ModelLlava); !errors.Is(err, ErrUnknownModel) {
			t.Errorf("error = %v, want ErrUnknownModel", err)
		}
		if len(r.List()) != 0 {
			t.Errorf("List() = %v, want empty", r.List())
		}
	})

	t.Run("models sorted", func(t *testing.T) {
		r := NewRegistry()
		r.Register("a", NewMockCompleter(), schema.ModelLlava, schema.ModelGPT4o)
		models := r.Models()
		if len(models) != 2 || models[0] != schema.ModelGPT4o || models[1] != schema.ModelLlava {
			t.Errorf("Models() = %v", models)
		}
	})

	t.Run("concurrent access", func(t *testing.T) {
		r := NewRegistry()
		r.Register("mock", NewMockCompleter(), schema.ModelLlava)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					r.ForModel(schema.ModelLlava)
					r.Models()
				}
			}()
		}
		wg.Wait()
	})
}

func testRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Providers: map[string]ProviderConfig{
			"openai": {
				Type:    TypeOpenAI,
				APIKey:  "sk-test",
				Models:  []schema.ModelOption{schema.ModelGPT4o, schema.ModelGPT4oMini},
				Timeout: time.Minute,
				Enabled: true,
			},
			"ollama": {
				Type:    TypeOllama,
				BaseURL: "http://localhost:11434",
				Models:  []schema.ModelOption{schema.ModelLlava, schema.ModelLlama32Vision},
				Enabled: true,
			},
		},
	}
}

func TestNewRegistryFromConfig(t *testing.T) {
	t.Run("routes each model to its provider", func(t *testing.T) {
		r := NewRegistryFromConfig(testRegistryConfig())

		tests := []struct {
			model schema.ModelOption
			want  string
		}{
			{schema.ModelGPT4o, OpenAIName},
			{schema.ModelGPT4oMini, OpenAIName},
			{schema.ModelLlava, OllamaName},
			{schema.ModelLlama32Vision, OllamaName},
		}
		for _, tt := range tests {
			client, err := r.ForModel(tt.model)
			if err != nil {
				t.Fatalf("ForModel(%s) error = %v", tt.model, err)
			}
			if client.Name() != tt.want {
				t.Errorf("ForModel(%s).Name() = %s, want %s", tt.model, client.Name(), tt.want)
			}
		}
	})

	t.Run("hosted provider without key relies on per-call key", func(t *testing.T) {
		var auths []string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auths = append(auths, r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(openAITestResponse))
		}))
		defer server.Close()

		cfg := testRegistryConfig()
		openai := cfg.Providers["openai"]
		openai.APIKey = ""
		openai.BaseURL = server.URL
		cfg.Providers["openai"] = openai

		r := NewRegistryFromConfig(cfg)
		client, err := r.ForModel(schema.ModelGPT4o)
		if err != nil {
			t.Fatalf("ForModel(gpt-4o) error = %v", err)
		}

		image := writeTestImage(t)
		if _, err := client.Complete(context.Background(), schema.CompletionArgs{
			APIKey:    "sk-per-call",
			ImagePath: image,
			Model:     schema.ModelGPT4o,
		}); err != nil {
			t.Fatalf("Complete() with per-call key error = %v", err)
		}
		if len(auths) != 1 || auths[0] != "Bearer sk-per-call" {
			t.Errorf("authorization headers = %v, want [Bearer sk-per-call]", auths)
		}

		_, err = client.Complete(context.Background(), schema.CompletionArgs{
			ImagePath: image,
			Model:     schema.ModelGPT4o,
		})
		if !errors.Is(err, ErrMissingAPIKey) {
			t.Errorf("error = %v, want ErrMissingAPIKey", err)
		}
		if IsRetryable(err) {
			t.Error("missing API key should not be retryable")
		}
		if len(auths) != 1 {
			t.Errorf("keyless call reached the server")
		}
	})

	t.Run("skips disabled and unknown types", func(t *testing.T) {
		cfg := testRegistryConfig()
		ollama := cfg.Providers["ollama"]
		ollama.Enabled = false
		cfg.Providers["ollama"] = ollama
		cfg.Providers["azure"] = ProviderConfig{
			Type:    "azure",
			APIKey:  "x",
			Models:  []schema.ModelOption{schema.ModelLlava},
			Enabled: true,
		}

		r := NewRegistryFromConfig(cfg)
		if got := r.List(); len(got) != 1 || got[0] != "openai" {
			t.Errorf("List() = %v, want [openai]", got)
		}
	})

	t.Run("first provider by name wins a shared model", func(t *testing.T) {
		cfg := testRegistryConfig()
		cfg.Providers["local-gpu"] = ProviderConfig{
			Type:    TypeOllama,
			Models:  []schema.ModelOption{schema.ModelLlava},
			Enabled: true,
		}

		r := NewRegistryFromConfig(cfg)
		if name, _ := r.ProviderFor(schema.ModelLlava); name != "local-gpu" {
			t.Errorf("ProviderFor(llava) = %s, want local-gpu", name)
		}
	})
}

func TestRegistry_Reload(t *testing.T) {
	t.Run("keeps unchanged clients", func(t *testing.T) {
		r := NewRegistryFromConfig(testRegistryConfig())
		before, _ := r.Get("ollama")

		r.Reload(testRegistryConfig())

		after, _ := r.Get("ollama")
		if before != after {
			t.Error("unchanged provider was recreated")
		}
	})

	t.Run("recreates changed clients", func(t *testing.T) {
		r := NewRegistryFromConfig(testRegistryConfig())
		before, _ := r.Get("openai")

		cfg := testRegistryConfig()
		openai := cfg.Providers["openai"]
		openai.APIKey = "sk-rotated"
		cfg.Providers["openai"] = openai
		r.Reload(cfg)

		after, _ := r.Get("openai")
		if before == after {
			t.Error("provider with rotated key was not recreated")
		}
	})

	t.Run("removes dropped providers", func(t *testing.T) {
		r := NewRegistryFromConfig(testRegistryConfig())

		cfg := testRegistryConfig()
		delete(cfg.Providers, "openai")
		r.Reload(cfg)

		if _, err := r.ForModel(schema.ModelGPT4o); !errors.Is(err, ErrUnknownModel) {
			t.Errorf("error = %v, want ErrUnknownModel", err)
		}
		if _, err := r.Get("openai"); err == nil {
			t.Error("openai should have been unregistered")
		}
	})

	t.Run("reroutes moved models", func(t *testing.T) {
		r := NewRegistryFromConfig(testRegistryConfig())

		cfg := testRegistryConfig()
		ollama := cfg.Providers["ollama"]
		ollama.Models = []schema.ModelOption{schema.ModelLlava}
		cfg.Providers["ollama"] = ollama
		cfg.Providers["gpu"] = ProviderConfig{
			Type:    TypeOllama,
			BaseURL: "http://gpu:11434",
			Models:  []schema.ModelOption{schema.ModelLlama32Vision},
			Enabled: true,
		}
		r.Reload(cfg)

		if name, _ := r.ProviderFor(schema.ModelLlama32Vision); name != "gpu" {
			t.Errorf("ProviderFor(llama3.2-vision) = %s, want gpu", name)
		}
		if name, _ := r.ProviderFor(schema.ModelLlava); name != "ollama" {
			t.Errorf("ProviderFor(llava) = %s, want ollama", name)
		}
	})
}
