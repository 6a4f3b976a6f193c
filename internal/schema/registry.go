package schema

import (
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Record names, as used by Get and the CLI.
const (
	RecordModelOptions       = "ModelOptions"
	RecordLLMParams          = "LLMParams"
	RecordPage               = "Page"
	RecordCompletionResponse = "CompletionResponse"
	RecordCompletionArgs     = "CompletionArgs"
	RecordDocupieOutput      = "DocupieOutput"
)

// Schema is the JSON Schema document for one record type.
type Schema struct {
	Name   string // Record name (e.g., "Page")
	File   string // Embedded file name
	Source []byte // JSON Schema document
	Order  int    // Compile order (lower = first)
}

// registry holds all record schemas in dependency order.
// Referenced schemas come before the records that $ref them.
var registry = []Schema{
	{Name: RecordModelOptions, File: "model_options.json", Order: 1},
	{Name: RecordLLMParams, File: "llm_params.json", Order: 2},
	{Name: RecordPage, File: "page.json", Order: 3},
	{Name: RecordCompletionResponse, File: "completion_response.json", Order: 4},
	{Name: RecordCompletionArgs, File: "completion_args.json", Order: 5}, // refs ModelOptions, LLMParams
	{Name: RecordDocupieOutput, File: "docupie_output.json", Order: 6},   // refs Page
}

// All returns all schemas in dependency order.
// Schemas are loaded from embedded .json files.
func All() ([]Schema, error) {
	schemas := make([]Schema, len(registry))
	copy(schemas, registry)

	for i := range schemas {
		content, err := schemaFS.ReadFile("schemas/" + schemas[i].File)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", schemas[i].Name, err)
		}
		schemas[i].Source = content
	}

	sort.Slice(schemas, func(i, j int) bool {
		return schemas[i].Order < schemas[j].Order
	})

	return schemas, nil
}

// Get returns a single schema by name. Lookup ignores case, underscores and
// dashes, so "completion_args" and "CompletionArgs" both match.
func Get(name string) (*Schema, error) {
	want := normalizeName(name)
	for _, s := range registry {
		if normalizeName(s.Name) == want {
			content, err := schemaFS.ReadFile("schemas/" + s.File)
			if err != nil {
				return nil, fmt.Errorf("failed to read schema %s: %w", s.Name, err)
			}
			return &Schema{
				Name:   s.Name,
				File:   s.File,
				Source: content,
				Order:  s.Order,
			}, nil
		}
	}
	return nil, fmt.Errorf("schema not found: %s", name)
}

// Names returns every record name in dependency order.
func Names() []string {
	names := make([]string, len(registry))
	for i, s := range registry {
		names[i] = s.Name
	}
	return names
}

func normalizeName(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", "")
	return strings.ReplaceAll(s, "-", "")
}
