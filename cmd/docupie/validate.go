package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docupie/internal/api"
	"github.com/jackzampolin/docupie/internal/schema"
)

type validateResult struct {
	Record string              `json:"record" yaml:"record"`
	Valid  bool                `json:"valid" yaml:"valid"`
	Errors []schema.FieldError `json:"errors,omitempty" yaml:"errors,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate <record> [file]",
	Short: "Validate a JSON document against a record schema",
	Long: fmt.Sprintf(`Validate a JSON document against one of the record schemas.

Records: %s

The document is read from file, or from stdin when file is omitted or "-".
Exits non-zero when the document is invalid.

Examples:
  docupie validate DocupieOutput result.json
  echo '{"model":"llava"}' | docupie validate completion_args`, strings.Join(schema.Names(), ", ")),
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := schema.Get(args[0])
		if err != nil {
			return err
		}

		var data []byte
		if len(args) == 1 || args[1] == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(args[1])
		}
		if err != nil {
			return fmt.Errorf("failed to read document: %w", err)
		}

		result := validateResult{Record: s.Name, Valid: true}
		verr := schema.ValidateJSON(s.Name, data)
		if verr != nil {
			ve, ok := schema.IsValidationError(verr)
			if !ok {
				return verr
			}
			result.Valid = false
			result.Errors = ve.Fields
		}

		if err := api.OutputTo(cmd.OutOrStdout(), api.GetOutputFormat(), result); err != nil {
			return err
		}
		return verr
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema <record>",
	Short: "Print the JSON Schema for a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := schema.Get(args[0])
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(s.Source)
		return err
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(schemaCmd)
}
