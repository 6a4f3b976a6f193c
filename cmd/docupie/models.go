package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/docupie/internal/api"
	"github.com/jackzampolin/docupie/internal/config"
	"github.com/jackzampolin/docupie/internal/schema"
)

type modelInfo struct {
	Model     string `json:"model" yaml:"model"`
	Hosted    bool   `json:"hosted" yaml:"hosted"`
	Provider  string `json:"provider,omitempty" yaml:"provider,omitempty"`
	Type      string `json:"type,omitempty" yaml:"type,omitempty"`
	Available bool   `json:"available" yaml:"available"`
	// NeedsAPIKey is set when a hosted provider has no configured key;
	// process then requires --api-key.
	NeedsAPIKey bool `json:"needs_api_key,omitempty" yaml:"needs_api_key,omitempty"`
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List supported models and the providers serving them",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, _, err := loadConfig()
		if err != nil {
			return err
		}
		cfg := mgr.Get()

		var out []modelInfo
		for _, m := range schema.ModelOptions() {
			info := modelInfo{Model: string(m), Hosted: m.IsHosted()}
			if name, p, ok := cfg.ProviderFor(m); ok {
				info.Provider = name
				info.Type = p.Type
				info.Available = true
				info.NeedsAPIKey = p.Type == config.ProviderTypeOpenAI && cfg.ResolveAPIKey(m) == ""
			}
			out = append(out, info)
		}
		return api.OutputTo(cmd.OutOrStdout(), api.GetOutputFormat(), out)
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
