package schema

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaBaseURL is the resource ID prefix; $ref "page.json" resolves against it.
const schemaBaseURL = "https://schemas.docupie.dev/"

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

// Initialize compiles all embedded schemas.
// It's safe to call multiple times - compilation happens once.
func Initialize() error {
	compileOnce.Do(func() {
		compiled, compileErr = compileAll()
	})
	return compileErr
}

func compileAll() (map[string]*jsonschema.Schema, error) {
	schemas, err := All()
	if err != nil {
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	for _, s := range schemas {
		if err := compiler.AddResource(schemaBaseURL+s.File, bytes.NewReader(s.Source)); err != nil {
			return nil, fmt.Errorf("failed to add schema %s: %w", s.Name, err)
		}
	}

	out := make(map[string]*jsonschema.Schema, len(schemas))
	for _, s := range schemas {
		sch, err := compiler.Compile(schemaBaseURL + s.File)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", s.Name, err)
		}
		out[s.Name] = sch
	}
	return out, nil
}

func compiledSchema(name string) (*jsonschema.Schema, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	sch, ok := compiled[name]
	if !ok {
		return nil, fmt.Errorf("schema not found: %s", name)
	}
	return sch, nil
}
