package tool

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaValidator compiles each tool's declared parameter schema once at
// registration and validates call params against it on every invocation,
// before the typed body ever sees the arguments (§9 "Dynamic typing").
type SchemaValidator struct {
	compiled map[string]*jsonschema.Schema
}

// NewSchemaValidator compiles the parameter schema of every tool in r.
func NewSchemaValidator(r *Registry) (*SchemaValidator, error) {
	sv := &SchemaValidator{compiled: make(map[string]*jsonschema.Schema)}
	for _, name := range r.Names() {
		t, _ := r.Get(name)
		compiler := jsonschema.NewCompiler()
		raw := t.ParameterSchema()
		if len(raw) == 0 {
			continue
		}
		url := "mem://" + name + ".json"
		if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("tool: compile schema for %q: %w", name, err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("tool: compile schema for %q: %w", name, err)
		}
		sv.compiled[name] = schema
	}
	return sv, nil
}

// Validate checks raw params against the compiled schema for toolName. A
// tool with no declared schema accepts any params.
func (sv *SchemaValidator) Validate(toolName string, params json.RawMessage) error {
	schema, ok := sv.compiled[toolName]
	if !ok {
		return nil
	}
	var v any
	if err := json.Unmarshal(params, &v); err != nil {
		return fmt.Errorf("tool: params for %q are not valid JSON: %w", toolName, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("tool: params for %q failed schema validation: %w", toolName, err)
	}
	return nil
}
