package docupie

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/docupie/internal/home"
	"github.com/jackzampolin/docupie/internal/pdf"
	"github.com/jackzampolin/docupie/internal/providers"
	"github.com/jackzampolin/docupie/internal/schema"
)

// fakeRenderer writes one placeholder image per page.
type fakeRenderer struct {
	pages  int
	err    error
	outDir string
}

func (r *fakeRenderer) Render(ctx context.Context, path, outDir string, pages []int) ([]pdf.PageImage, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.outDir = outDir
	if pages == nil {
		for i := 1; i <= r.pages; i++ {
			pages = append(pages, i)
		}
	}
	var out []pdf.PageImage
	for _, n := range pages {
		if n > r.pages {
			return nil, fmt.Errorf("%w: page %d of %d", pdf.ErrPageOutOfRange, n, r.pages)
		}
		p := filepath.Join(outDir, pdf.PageImageName(n)+".png")
		if err := os.WriteFile(p, []byte("png"), 0o644); err != nil {
			return nil, err
		}
		out = append(out, pdf.PageImage{Number: n, Path: p})
	}
	return out, nil
}

func writeInput(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestProcessor(t *testing.T, mock *providers.MockCompleter, renderer pdf.Renderer, logger *slog.Logger) (*Processor, *home.Dir) {
	t.Helper()
	registry := providers.NewRegistry()
	registry.SetLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	registry.Register("mock", mock, schema.ModelOptions()...)

	homeDir, _ := home.New(t.TempDir())
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	}
	p, err := NewProcessor(Config{
		Completers: registry,
		Renderer:   renderer,
		Home:       homeDir,
		Retries:    3,
		RetryDelay: time.Millisecond,
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("NewProcessor() error = %v", err)
	}
	return p, homeDir
}

func TestProcessor_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("aggregates pages in order", func(t *testing.T) {
		mock := providers.NewMockCompleter()
		mock.Respond = func(args schema.CompletionArgs) string {
			return "```markdown\n# " + filepath.Base(args.ImagePath) + "\n```"
		}
		renderer := &fakeRenderer{pages: 3}
		p, _ := newTestProcessor(t, mock, renderer, nil)

		out, err := p.Process(ctx, Request{
			FilePath: writeInput(t, "annual-report.pdf"),
			Model:    schema.ModelGPT4oMini,
		})
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}

		if out.FileName != "annual-report" {
			t.Errorf("FileName = %q, want annual-report", out.FileName)
		}
		if out.TotalPages() != 3 {
			t.Fatalf("TotalPages() = %d, want 3", out.TotalPages())
		}
		for i, page := range out.Pages {
			if page.Page != i+1 {
				t.Errorf("pages[%d].Page = %d, want %d", i, page.Page, i+1)
			}
			want := fmt.Sprintf("# page_%04d.png", i+1)
			if page.Content != want {
				t.Errorf("pages[%d].Content = %q, want %q", i, page.Content, want)
			}
			if page.ContentLength != len([]rune(want)) {
				t.Errorf("pages[%d].ContentLength = %d", i, page.ContentLength)
			}
		}
		if out.InputTokens != 300 {
			t.Errorf("InputTokens = %d, want 300", out.InputTokens)
		}
		if out.CompletionTime <= 0 {
			t.Error("expected positive CompletionTime")
		}
		if err := out.Validate(); err != nil {
			t.Errorf("output should validate: %v", err)
		}
	})

	t.Run("passes prior page only when maintaining format", func(t *testing.T) {
		for _, maintain := range []bool{false, true} {
			t.Run(fmt.Sprintf("maintain_%t", maintain), func(t *testing.T) {
				mock := providers.NewMockCompleter()
				mock.Respond = func(args schema.CompletionArgs) string {
					return "content of " + filepath.Base(args.ImagePath)
				}
				p, _ := newTestProcessor(t, mock, &fakeRenderer{pages: 2}, nil)

				if _, err := p.Process(ctx, Request{
					FilePath:       writeInput(t, "doc.pdf"),
					Model:          schema.ModelLlava,
					MaintainFormat: maintain,
				}); err != nil {
					t.Fatalf("Process() error = %v", err)
				}

				calls := mock.Calls()
				if len(calls) != 2 {
					t.Fatalf("expected 2 calls, got %d", len(calls))
				}
				if calls[0].PriorPage != "" {
					t.Errorf("first page PriorPage = %q, want empty", calls[0].PriorPage)
				}
				wantPrior := ""
				if maintain {
					wantPrior = "content of page_0001.png"
				}
				if calls[1].PriorPage != wantPrior {
					t.Errorf("second page PriorPage = %q, want %q", calls[1].PriorPage, wantPrior)
				}
				if calls[1].MaintainFormat != maintain {
					t.Errorf("MaintainFormat = %t, want %t", calls[1].MaintainFormat, maintain)
				}
			})
		}
	})

	t.Run("forwards request fields", func(t *testing.T) {
		mock := providers.NewMockCompleter()
		p, _ := newTestProcessor(t, mock, &fakeRenderer{pages: 1}, nil)
		temp := 0.1

		if _, err := p.Process(ctx, Request{
			FilePath:  writeInput(t, "doc.pdf"),
			Model:     schema.ModelGPT4o,
			APIKey:    "sk-request",
			LLMParams: &schema.LLMParams{Temperature: &temp},
		}); err != nil {
			t.Fatalf("Process() error = %v", err)
		}

		call := mock.Calls()[0]
		if call.APIKey != "sk-request" || call.Model != schema.ModelGPT4o {
			t.Errorf("unexpected call args: %v", call)
		}
		if call.LLMParams == nil || *call.LLMParams.Temperature != 0.1 {
			t.Errorf("LLMParams not forwarded: %+v", call.LLMParams)
		}
	})

	t.Run("selected pages keep document numbering", func(t *testing.T) {
		mock := providers.NewMockCompleter()
		p, _ := newTestProcessor(t, mock, &fakeRenderer{pages: 5}, nil)

		out, err := p.Process(ctx, Request{
			FilePath: writeInput(t, "doc.pdf"),
			Model:    schema.ModelGPT4o,
			Pages:    []int{2, 5},
		})
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		if len(out.Pages) != 2 || out.Pages[0].Page != 2 || out.Pages[1].Page != 5 {
			t.Errorf("unexpected pages: %+v", out.Pages)
		}
	})

	t.Run("retries transient failures", func(t *testing.T) {
		mock := providers.NewMockCompleter()
		mock.Err = &providers.APIError{Provider: "mock", StatusCode: 503}
		mock.FailTimes = 2
		p, _ := newTestProcessor(t, mock, &fakeRenderer{pages: 1}, nil)

		out, err := p.Process(ctx, Request{FilePath: writeInput(t, "doc.pdf"), Model: schema.ModelGPT4o})
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		if mock.RequestCount() != 3 {
			t.Errorf("RequestCount = %d, want 3", mock.RequestCount())
		}
		if len(out.Pages) != 1 {
			t.Errorf("expected 1 page, got %d", len(out.Pages))
		}
	})

	t.Run("gives up after configured attempts", func(t *testing.T) {
		mock := providers.NewMockCompleter()
		mock.Err = &providers.APIError{Provider: "mock", StatusCode: 429}
		p, _ := newTestProcessor(t, mock, &fakeRenderer{pages: 2}, nil)

		_, err := p.Process(ctx, Request{FilePath: writeInput(t, "doc.pdf"), Model: schema.ModelGPT4o})
		var apiErr *providers.APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %v", err)
		}
		if !strings.Contains(err.Error(), "page 1") {
			t.Errorf("error should name the page: %v", err)
		}
		if mock.RequestCount() != 3 {
			t.Errorf("RequestCount = %d, want 3", mock.RequestCount())
		}
	})

	t.Run("does not retry permanent failures", func(t *testing.T) {
		mock := providers.NewMockCompleter()
		mock.Err = &providers.APIError{Provider: "mock", StatusCode: 401}
		p, _ := newTestProcessor(t, mock, &fakeRenderer{pages: 1}, nil)

		if _, err := p.Process(ctx, Request{FilePath: writeInput(t, "doc.pdf"), Model: schema.ModelGPT4o}); err == nil {
			t.Fatal("expected error")
		}
		if mock.RequestCount() != 1 {
			t.Errorf("RequestCount = %d, want 1", mock.RequestCount())
		}
	})

	t.Run("invalid model", func(t *testing.T) {
		p, _ := newTestProcessor(t, providers.NewMockCompleter(), &fakeRenderer{pages: 1}, nil)
		_, err := p.Process(ctx, Request{FilePath: writeInput(t, "doc.pdf"), Model: "gpt-5"})
		if !errors.Is(err, schema.ErrValidation) {
			t.Errorf("error = %v, want validation error", err)
		}
	})

	t.Run("unserved model", func(t *testing.T) {
		registry := providers.NewRegistry()
		registry.SetLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
		registry.Register("mock", providers.NewMockCompleter(), schema.ModelLlava)
		p, _ := NewProcessor(Config{Completers: registry, Renderer: &fakeRenderer{pages: 1}})

		_, err := p.Process(ctx, Request{FilePath: writeInput(t, "doc.pdf"), Model: schema.ModelGPT4o})
		if !errors.Is(err, providers.ErrUnknownModel) {
			t.Errorf("error = %v, want ErrUnknownModel", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		p, _ := newTestProcessor(t, providers.NewMockCompleter(), &fakeRenderer{pages: 1}, nil)
		if _, err := p.Process(ctx, Request{FilePath: "/no/such/file.pdf", Model: schema.ModelGPT4o}); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("no pages", func(t *testing.T) {
		p, _ := newTestProcessor(t, providers.NewMockCompleter(), &fakeRenderer{pages: 0}, nil)
		_, err := p.Process(ctx, Request{FilePath: writeInput(t, "empty.pdf"), Model: schema.ModelGPT4o})
		if !errors.Is(err, ErrNoPages) {
			t.Errorf("error = %v, want ErrNoPages", err)
		}
	})

	t.Run("render failure", func(t *testing.T) {
		renderer := &fakeRenderer{err: pdf.ErrUnsupportedFile}
		p, _ := newTestProcessor(t, providers.NewMockCompleter(), renderer, nil)
		_, err := p.Process(ctx, Request{FilePath: writeInput(t, "doc.docx"), Model: schema.ModelGPT4o})
		if !errors.Is(err, pdf.ErrUnsupportedFile) {
			t.Errorf("error = %v, want ErrUnsupportedFile", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		mock := providers.NewMockCompleter()
		mock.Latency = time.Second
		p, _ := newTestProcessor(t, mock, &fakeRenderer{pages: 3}, nil)

		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := p.Process(cctx, Request{FilePath: writeInput(t, "doc.pdf"), Model: schema.ModelGPT4o})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("error = %v, want deadline exceeded", err)
		}
	})
}

func TestProcessor_ScratchImages(t *testing.T) {
	ctx := context.Background()

	t.Run("removed by default", func(t *testing.T) {
		renderer := &fakeRenderer{pages: 2}
		p, _ := newTestProcessor(t, providers.NewMockCompleter(), renderer, nil)

		if _, err := p.Process(ctx, Request{FilePath: writeInput(t, "doc.pdf"), Model: schema.ModelGPT4o}); err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		if _, err := os.Stat(renderer.outDir); !os.IsNotExist(err) {
			t.Errorf("scratch dir %s should be removed", renderer.outDir)
		}
	})

	t.Run("kept on request", func(t *testing.T) {
		renderer := &fakeRenderer{pages: 2}
		p, homeDir := newTestProcessor(t, providers.NewMockCompleter(), renderer, nil)

		if _, err := p.Process(ctx, Request{
			FilePath:   writeInput(t, "doc.pdf"),
			Model:      schema.ModelGPT4o,
			KeepImages: true,
		}); err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		if !strings.HasPrefix(renderer.outDir, homeDir.RunsDir()) {
			t.Errorf("scratch dir %s should be under %s", renderer.outDir, homeDir.RunsDir())
		}
		if _, err := os.Stat(filepath.Join(renderer.outDir, "page_0002.png")); err != nil {
			t.Errorf("page image should be kept: %v", err)
		}
	})
}

func TestProcessor_DoesNotLogAPIKey(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	mock := providers.NewMockCompleter()
	mock.Err = &providers.APIError{Provider: "mock", StatusCode: 500}
	mock.FailTimes = 1
	p, _ := newTestProcessor(t, mock, &fakeRenderer{pages: 1}, logger)

	if _, err := p.Process(context.Background(), Request{
		FilePath: writeInput(t, "doc.pdf"),
		Model:    schema.ModelGPT4o,
		APIKey:   "sk-super-secret",
	}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if !strings.Contains(logs.String(), "retrying") {
		t.Fatal("expected a retry log line")
	}
	if strings.Contains(logs.String(), "sk-super-secret") {
		t.Error("API key leaked into logs")
	}
}

func TestNewProcessor(t *testing.T) {
	if _, err := NewProcessor(Config{Renderer: &fakeRenderer{}}); err == nil {
		t.Error("expected error without completer source")
	}
	if _, err := NewProcessor(Config{Completers: providers.NewRegistry()}); err == nil {
		t.Error("expected error without renderer")
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/path/to/annual-report.pdf", "annual-report"},
		{"scan.page.png", "scan.page"},
		{"noext", "noext"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := FileName(tt.input); got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}
