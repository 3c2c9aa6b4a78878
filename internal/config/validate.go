package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	sigsyaml "sigs.k8s.io/yaml"
)

// manifestSchema constrains the manifest shape before decoding. Unknown
// top-level keys are rejected so typos fail loudly instead of silently
// falling back to defaults.
const manifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "dependencies": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    },
    "venv": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "dir": {"type": "string"},
        "requirements": {"type": "string"}
      }
    },
    "node": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "version": {"type": "string"},
        "packages": {
          "type": "array",
          "items": {"type": "string", "minLength": 1}
        },
        "checksum": {"type": "string", "pattern": "^([0-9a-fA-F]{64})?$"}
      }
    },
    "tuning": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "persist": {"type": "boolean"}
      }
    },
    "reports": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "dir": {"type": "string"}
      }
    },
    "toolsDir": {"type": "string"}
  }
}`

// ValidateAgainstSchema validates JSON data against the given schema
// document registered under name.
func ValidateAgainstSchema(name string, schema []byte, data []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(schema)); err != nil {
		return fmt.Errorf("registering schema %s: %w", name, err)
	}

	compiled, err := compiler.Compile(name)
	if err != nil {
		return fmt.Errorf("compiling schema %s: %w", name, err)
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing document: %w", err)
	}

	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// ValidateManifestYAML converts manifest YAML to JSON and validates it
// against the embedded manifest schema.
func ValidateManifestYAML(data []byte) error {
	jsonData, err := sigsyaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("converting manifest YAML: %w", err)
	}
	return ValidateAgainstSchema("manifest.schema.json", []byte(manifestSchema), jsonData)
}
