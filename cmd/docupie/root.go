package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docupie/internal/api"
	"github.com/jackzampolin/docupie/internal/config"
	"github.com/jackzampolin/docupie/internal/home"
	"github.com/jackzampolin/docupie/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string

	logger = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "docupie",
	Short: "Convert PDFs and page images to markdown with vision models",
	Long: `Docupie converts documents to markdown one page at a time.

Each page is rendered to an image and sent to a vision-language model:
  - gpt-4o and gpt-4o-mini through the OpenAI API
  - llava and llama3.2-vision through a local Ollama server

Results are reported per page with token usage and timing.`,
	Version:       version.GitRelease,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := api.SetOutputFormat(outputFormat); err != nil {
			return err
		}
		level, err := parseLogLevel(logLevel)
		if err != nil {
			return err
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.docupie/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "docupie home directory (default: ~/.docupie)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml, json or markdown",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "info", "log level: debug, info, warn or error",
	)

	rootCmd.AddCommand(versionCmd)
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// loadConfig resolves the home directory and loads configuration. An explicit
// --config wins; otherwise the home directory's config.yaml is used when present.
func loadConfig() (*config.Manager, *home.Dir, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, nil, err
	}

	path := cfgFile
	if path == "" && homeDir != "" && h.ConfigExists() {
		path = h.ConfigPath()
	}

	mgr, err := config.NewManager(path)
	if err != nil {
		return nil, nil, err
	}
	if f := mgr.ConfigFile(); f != "" {
		logger.Debug("loaded config", "file", f)
	}
	return mgr, h, nil
}
