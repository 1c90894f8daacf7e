// Package loader reads and validates workflow documents. Documents are
// YAML, validated against a JSON schema before being decoded into the
// typed model, so structural errors surface with schema paths instead of
// zero values deep in the engine.
package loader

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/sourceplane/flowci/internal/model"
	"gopkg.in/yaml.v3"
)

//go:embed workflow.schema.yaml
var workflowSchemaYAML []byte

// Validator validates workflow documents against the embedded schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded workflow schema.
func NewValidator() (*Validator, error) {
	schema, err := compileSchema(workflowSchemaYAML)
	if err != nil {
		return nil, fmt.Errorf("failed to compile workflow schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// ValidateWorkflow validates a decoded document against the schema.
func (v *Validator) ValidateWorkflow(data interface{}) error {
	return v.schema.Validate(data)
}

// LoadWorkflow reads, validates and decodes a workflow YAML file.
func LoadWorkflow(path string) (*model.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}
	return ParseWorkflow(data)
}

// ParseWorkflow validates and decodes workflow YAML bytes.
func ParseWorkflow(data []byte) (*model.Workflow, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}

	// Decode to a generic document first so schema validation sees the
	// raw shape, then decode into the typed model.
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse workflow YAML: %w", err)
	}
	if err := validator.ValidateWorkflow(normalizeForSchema(doc)); err != nil {
		return nil, fmt.Errorf("workflow failed schema validation: %w", err)
	}

	var wf model.Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("failed to parse workflow YAML: %w", err)
	}

	return &wf, nil
}

// compileSchema parses a YAML schema and compiles it (the schema compiler
// speaks JSON, so the document round-trips through json.Marshal).
func compileSchema(data []byte) (*jsonschema.Schema, error) {
	var schemaData interface{}
	if err := yaml.Unmarshal(data, &schemaData); err != nil {
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}

	jsonData, err := json.Marshal(schemaData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	schema, err := jsonschema.CompileString("workflow.schema.json", string(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return schema, nil
}

// normalizeForSchema round-trips a YAML-decoded document through JSON so
// the validator sees JSON-native types.
func normalizeForSchema(doc interface{}) interface{} {
	raw, err := json.Marshal(doc)
	if err != nil {
		return doc
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return doc
	}
	return out
}
