package validator

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// planManifestSchema mirrors the PlanManifest wire shape (spec §6 "Plan
// manifest JSON" / §3 core entities): an ordered list of iterations, each
// holding tasks with the required fields every PlanTask carries.
const planManifestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["iterations"],
  "properties": {
    "project_name": {"type": "string"},
    "iterations": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "number", "name", "tasks"],
        "properties": {
          "id": {"type": "string", "pattern": "^I[0-9]+$"},
          "number": {"type": "integer", "minimum": 1},
          "name": {"type": "string"},
          "goal": {"type": "string"},
          "description": {"type": "string"},
          "tasks": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["id", "number", "title", "dependencies", "acceptance_criteria", "completed"],
              "properties": {
                "id": {"type": "string", "pattern": "^I[0-9]+\\.T[0-9]+$"},
                "number": {"type": "integer", "minimum": 1},
                "title": {"type": "string", "minLength": 1},
                "description": {"type": "string"},
                "agent_id": {"type": "string"},
                "dependencies": {"type": "array", "items": {"type": "string"}},
                "acceptance_criteria": {"type": "array", "items": {"type": "string"}},
                "completed": {"type": "boolean"}
              }
            }
          }
        }
      }
    }
  }
}`

// schemaValidator is compiled once and reused; jsonschema.Schema is safe
// for concurrent Validate calls.
var schemaValidator = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(planManifestSchema)))
	if err != nil {
		panic(fmt.Sprintf("validator: invalid embedded schema: %v", err))
	}
	const resourceName = "plan_manifest.json"
	if err := c.AddResource(resourceName, doc); err != nil {
		panic(fmt.Sprintf("validator: add schema resource: %v", err))
	}
	sch, err := c.Compile(resourceName)
	if err != nil {
		panic(fmt.Sprintf("validator: compile schema: %v", err))
	}
	return sch
}

// ValidateStructure runs JSON Schema validation over a raw plan manifest
// document, ahead of the dependency/cycle/agent semantic stages (spec §4.9
// step 2's parsed plan feeds this before C8's own stages run).
func ValidateStructure(planJSON []byte) error {
	var v any
	if err := json.Unmarshal(planJSON, &v); err != nil {
		return fmt.Errorf("validator: invalid json: %w", err)
	}
	if err := schemaValidator.Validate(v); err != nil {
		return fmt.Errorf("validator: schema: %w", err)
	}
	return nil
}
