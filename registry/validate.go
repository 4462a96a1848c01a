package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	schemafs "github.com/ethereum-optimism/infra/op-testexec/registry/schema"
)

const planSchemaFile = "plan.schema.json"

var (
	planSchema  *jsonschema.Schema
	compileOnce sync.Once
	compileErr  error
)

// compileSchema compiles the embedded plan schema once
func compileSchema() error {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()

		data, err := schemafs.FS.ReadFile(planSchemaFile)
		if err != nil {
			compileErr = fmt.Errorf("read plan schema: %w", err)
			return
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal plan schema: %w", err)
			return
		}
		if err := compiler.AddResource(planSchemaFile, doc); err != nil {
			compileErr = fmt.Errorf("add plan schema resource: %w", err)
			return
		}
		planSchema, err = compiler.Compile(planSchemaFile)
		if err != nil {
			compileErr = fmt.Errorf("compile plan schema: %w", err)
			return
		}
	})
	return compileErr
}

// ValidatePlanJSON validates JSON data against the plan schema
func ValidatePlanJSON(data []byte) error {
	if err := compileSchema(); err != nil {
		return err
	}
	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := planSchema.Validate(v); err != nil {
		return fmt.Errorf("plan schema validation failed: %w", err)
	}
	return nil
}

// yamlToJSON re-encodes a decoded YAML document as JSON for validation
func yamlToJSON(doc any) ([]byte, error) {
	data, err := json.Marshal(normalizeYAML(doc))
	if err != nil {
		return nil, fmt.Errorf("convert plan to JSON: %w", err)
	}
	return data, nil
}

// normalizeYAML converts map[any]any nodes, which encoding/json rejects
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = normalizeYAML(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[fmt.Sprint(k)] = normalizeYAML(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalizeYAML(item)
		}
		return out
	}
	return v
}
