// Package docupie converts documents to markdown one page at a time with a
// vision model.
package docupie

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/jackzampolin/docupie/internal/home"
	"github.com/jackzampolin/docupie/internal/pdf"
	"github.com/jackzampolin/docupie/internal/providers"
	"github.com/jackzampolin/docupie/internal/schema"
)

// ErrNoPages is returned when a document yields no page images.
var ErrNoPages = errors.New("document has no pages")

// CompleterSource resolves the client for a model. *providers.Registry satisfies it.
type CompleterSource interface {
	ForModel(model schema.ModelOption) (providers.Completer, error)
}

// Request describes one document to convert.
type Request struct {
	FilePath       string
	Model          schema.ModelOption
	APIKey         string // Overrides the provider's configured key when set
	MaintainFormat bool
	LLMParams      *schema.LLMParams
	Pages          []int // 1-indexed; nil processes every page
	KeepImages     bool
}

// Config configures a Processor.
type Config struct {
	Completers CompleterSource
	Renderer   pdf.Renderer
	Home       *home.Dir     // Scratch space for rendered pages; a temp dir when nil
	Retries    int           // Attempts per page
	RetryDelay time.Duration // Base backoff delay
	Logger     *slog.Logger
}

// Processor runs documents through rendering and completion.
type Processor struct {
	completers CompleterSource
	renderer   pdf.Renderer
	home       *home.Dir
	retries    int
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewProcessor creates a processor.
func NewProcessor(cfg Config) (*Processor, error) {
	if cfg.Completers == nil {
		return nil, fmt.Errorf("completer source is required")
	}
	if cfg.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Processor{
		completers: cfg.Completers,
		renderer:   cfg.Renderer,
		home:       cfg.Home,
		retries:    cfg.Retries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger,
	}, nil
}

// Process converts every requested page of the file and aggregates the result.
// Pages are processed in document order so each can see its predecessor.
func (p *Processor) Process(ctx context.Context, req Request) (schema.DocupieOutput, error) {
	start := time.Now()

	if err := req.Model.Validate(); err != nil {
		return schema.DocupieOutput{}, err
	}
	if req.FilePath == "" {
		return schema.DocupieOutput{}, fmt.Errorf("file path is required")
	}
	if _, err := os.Stat(req.FilePath); err != nil {
		return schema.DocupieOutput{}, fmt.Errorf("failed to open input: %w", err)
	}

	completer, err := p.completers.ForModel(req.Model)
	if err != nil {
		return schema.DocupieOutput{}, err
	}

	runID := uuid.New().String()
	logger := p.logger.With("run_id", runID, "file", filepath.Base(req.FilePath), "model", req.Model)

	pagesDir, cleanup, err := p.scratchDir(runID)
	if err != nil {
		return schema.DocupieOutput{}, err
	}
	if req.KeepImages {
		logger.Info("keeping page images", "dir", pagesDir)
	} else {
		defer cleanup()
	}

	images, err := p.renderer.Render(ctx, req.FilePath, pagesDir, req.Pages)
	if err != nil {
		return schema.DocupieOutput{}, fmt.Errorf("failed to render %s: %w", req.FilePath, err)
	}
	if len(images) == 0 {
		return schema.DocupieOutput{}, ErrNoPages
	}

	logger.Info("processing document", "pages", len(images), "maintain_format", req.MaintainFormat)

	out := schema.DocupieOutput{
		FileName: FileName(req.FilePath),
		Pages:    make([]schema.Page, 0, len(images)),
	}

	priorPage := ""
	for _, img := range images {
		args := schema.CompletionArgs{
			APIKey:         req.APIKey,
			ImagePath:      img.Path,
			LLMParams:      req.LLMParams,
			MaintainFormat: req.MaintainFormat,
			Model:          req.Model,
		}
		if req.MaintainFormat {
			args.PriorPage = priorPage
		}

		resp, err := p.complete(ctx, completer, args, img.Number, logger)
		if err != nil {
			return schema.DocupieOutput{}, fmt.Errorf("page %d: %w", img.Number, err)
		}

		content := FormatMarkdown(resp.Content)
		out.Pages = append(out.Pages, schema.NewPage(content, img.Number))
		out.InputTokens += resp.InputTokens
		out.OutputTokens += resp.OutputTokens
		priorPage = content

		logger.Debug("page complete",
			"page", img.Number,
			"input_tokens", resp.InputTokens,
			"output_tokens", resp.OutputTokens,
		)
	}

	out.CompletionTime = float64(time.Since(start).Microseconds()) / 1000.0

	logger.Info("document complete",
		"pages", out.TotalPages(),
		"input_tokens", out.InputTokens,
		"output_tokens", out.OutputTokens,
		"completion_time_ms", out.CompletionTime,
	)

	return out, nil
}

// complete calls the model for one page, retrying transient failures with
// exponential backoff.
func (p *Processor) complete(ctx context.Context, c providers.Completer, args schema.CompletionArgs, pageNum int, logger *slog.Logger) (schema.CompletionResponse, error) {
	if err := args.Validate(); err != nil {
		return schema.CompletionResponse{}, err
	}

	return retry.DoWithData(
		func() (schema.CompletionResponse, error) {
			return c.Complete(ctx, args)
		},
		retry.Context(ctx),
		retry.Attempts(uint(p.retries)),
		retry.Delay(p.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(providers.IsRetryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("page completion failed, retrying",
				"page", pageNum,
				"attempt", n+1,
				"args", args,
				"error", err,
			)
		}),
	)
}

// scratchDir returns the directory rendered pages go into and a func removing it.
func (p *Processor) scratchDir(runID string) (string, func(), error) {
	if p.home != nil {
		if err := p.home.EnsurePagesDir(runID); err != nil {
			return "", nil, fmt.Errorf("failed to create pages directory: %w", err)
		}
		return p.home.PagesDir(runID), func() {
			if err := p.home.RemoveRun(runID); err != nil {
				p.logger.Warn("failed to remove run directory", "run_id", runID, "error", err)
			}
		}, nil
	}

	dir, err := os.MkdirTemp("", "docupie-"+runID+"-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}

// FileName returns the base name of path without its extension.
func FileName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
