package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docupie/internal/api"
	"github.com/jackzampolin/docupie/internal/config"
	"github.com/jackzampolin/docupie/internal/docupie"
	"github.com/jackzampolin/docupie/internal/pdf"
	"github.com/jackzampolin/docupie/internal/providers"
	"github.com/jackzampolin/docupie/internal/schema"
)

var processFlags struct {
	model          string
	maintainFormat bool
	pages          string
	dpi            int
	keepImages     bool
	apiKey         string
	save           bool
	retries        int

	temperature      float64
	topP             float64
	frequencyPenalty float64
	presencePenalty  float64
	maxTokens        int
}

var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Convert a PDF or page image to markdown",
	Long: `Convert a PDF or a single page image (.png, .jpg, .jpeg) to markdown.

PDF pages are rendered with pdftoppm (poppler-utils) and sent to the model
one at a time, in order. Flags override the defaults section of the config.

Examples:
  docupie process report.pdf
  docupie process report.pdf --model llava --pages 1-3,7
  docupie process scan.png -o markdown
  docupie process report.pdf --maintain-format --temperature 0 --save`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	f := processCmd.Flags()
	f.StringVarP(&processFlags.model, "model", "m", "", "model: gpt-4o, gpt-4o-mini, llava or llama3.2-vision")
	f.BoolVar(&processFlags.maintainFormat, "maintain-format", false, "pass each page's result to the next for consistent formatting")
	f.StringVar(&processFlags.pages, "pages", "", "pages to convert, e.g. 1-3,7 (default: all)")
	f.IntVar(&processFlags.dpi, "dpi", pdf.DefaultDPI, "render resolution for PDF pages")
	f.BoolVar(&processFlags.keepImages, "keep-images", false, "keep rendered page images in the home directory")
	f.StringVar(&processFlags.apiKey, "api-key", "", "API key for this run (overrides the configured key)")
	f.BoolVar(&processFlags.save, "save", false, "also save the result under the home outputs directory")
	f.IntVar(&processFlags.retries, "retries", 3, "attempts per page")

	f.Float64Var(&processFlags.temperature, "temperature", 0, "sampling temperature")
	f.Float64Var(&processFlags.topP, "top-p", 0, "nucleus sampling")
	f.Float64Var(&processFlags.frequencyPenalty, "frequency-penalty", 0, "frequency penalty")
	f.Float64Var(&processFlags.presencePenalty, "presence-penalty", 0, "presence penalty")
	f.IntVar(&processFlags.maxTokens, "max-tokens", 0, "maximum tokens per page")

	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	mgr, h, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := mgr.Get()

	req, err := buildRequest(cmd, cfg, args[0])
	if err != nil {
		return err
	}

	registry := providers.NewRegistryFromConfig(cfg.ToProviderRegistryConfig())
	registry.SetLogger(logger)

	// Long documents can outlive a config edit; pick up provider changes mid-run.
	if mgr.ConfigFile() != "" {
		mgr.OnChange(func(c *config.Config) {
			logger.Info("config changed, reloading providers")
			registry.Reload(c.ToProviderRegistryConfig())
		})
		mgr.WatchConfig()
	}

	dpi := cfg.Defaults.DPI
	if cmd.Flags().Changed("dpi") {
		dpi = processFlags.dpi
	}
	retries := cfg.Defaults.Retries
	if cmd.Flags().Changed("retries") {
		retries = processFlags.retries
	}

	if req.KeepImages || processFlags.save {
		if err := h.EnsureExists(); err != nil {
			return err
		}
	}

	processor, err := docupie.NewProcessor(docupie.Config{
		Completers: registry,
		Renderer:   pdf.NewPopplerRenderer(dpi, logger),
		Home:       h,
		Retries:    retries,
		RetryDelay: time.Duration(cfg.Defaults.RetryDelayMS) * time.Millisecond,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	out, err := processor.Process(ctx, req)
	if err != nil {
		return err
	}

	if processFlags.save {
		format := api.GetOutputFormat()
		path := h.OutputPath(out.FileName, format.Extension())
		if err := api.SaveTo(path, format, out); err != nil {
			return err
		}
		logger.Info("saved output", "path", path)
	}

	return api.OutputTo(cmd.OutOrStdout(), api.GetOutputFormat(), out)
}

// buildRequest merges the config defaults with any flags set on the command line.
func buildRequest(cmd *cobra.Command, cfg *config.Config, file string) (docupie.Request, error) {
	flags := cmd.Flags()

	modelName := cfg.Defaults.Model
	if flags.Changed("model") {
		modelName = processFlags.model
	}
	model, err := schema.ParseModelOption(modelName)
	if err != nil {
		return docupie.Request{}, err
	}

	pages, err := pdf.ParsePages(processFlags.pages)
	if err != nil {
		return docupie.Request{}, err
	}

	req := docupie.Request{
		FilePath:       file,
		Model:          model,
		APIKey:         processFlags.apiKey,
		MaintainFormat: cfg.Defaults.MaintainFormat,
		Pages:          pages,
		KeepImages:     cfg.Defaults.KeepImages,
	}
	if flags.Changed("maintain-format") {
		req.MaintainFormat = processFlags.maintainFormat
	}
	if flags.Changed("keep-images") {
		req.KeepImages = processFlags.keepImages
	}

	var params schema.LLMParams
	if cfg.Defaults.LLMParams != nil {
		params = *cfg.Defaults.LLMParams
	}
	if flags.Changed("temperature") {
		params.Temperature = &processFlags.temperature
	}
	if flags.Changed("top-p") {
		params.TopP = &processFlags.topP
	}
	if flags.Changed("frequency-penalty") {
		params.FrequencyPenalty = &processFlags.frequencyPenalty
	}
	if flags.Changed("presence-penalty") {
		params.PresencePenalty = &processFlags.presencePenalty
	}
	if flags.Changed("max-tokens") {
		if processFlags.maxTokens <= 0 {
			return docupie.Request{}, fmt.Errorf("--max-tokens must be positive, got %d", processFlags.maxTokens)
		}
		params.MaxTokens = &processFlags.maxTokens
	}
	if !params.IsEmpty() {
		req.LLMParams = &params
	}

	return req, nil
}
