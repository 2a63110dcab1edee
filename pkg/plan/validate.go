package plan

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// planSchema is the structural contract for ingested plans. Shape validation
// happens before any policy evaluation; a malformed plan is a usage error,
// never a policy denial.
const planSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["execution_id", "goal"],
  "properties": {
    "execution_id": {"type": "string", "minLength": 1},
    "goal": {"type": "string"},
    "dry_run": {"type": "boolean"},
    "assumptions": {"type": "array", "items": {"type": "string"}},
    "required_secrets": {"type": "array", "items": {"type": "string"}},
    "environment": {
      "type": "object",
      "properties": {
        "is_production": {"type": "boolean"},
        "confirm_prod": {"type": "boolean"}
      }
    },
    "steps": {"type": "array", "items": {"$ref": "#/$defs/step"}},
    "phases": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "steps"],
        "properties": {
          "name": {"type": "string"},
          "requires": {"type": "array", "items": {"type": "string"}},
          "steps": {"type": "array", "items": {"$ref": "#/$defs/step"}},
          "output_keys": {"type": "array", "items": {"type": "string"}}
        }
      }
    }
  },
  "$defs": {
    "step": {
      "type": "object",
      "required": ["step_id", "adapter", "method", "target"],
      "properties": {
        "step_id": {"type": "string", "minLength": 1},
        "adapter": {"enum": ["webhook", "workspace_read", "workspace_write", "shell", "browser"]},
        "method": {"type": "string", "minLength": 1},
        "target": {"type": "string", "minLength": 1},
        "read_only": {"type": "boolean"},
        "approval_scoped": {"type": "boolean"},
        "payload": {"type": "object"},
        "guards": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["path", "op"],
            "properties": {
              "path": {"type": "string", "minLength": 1},
              "op": {"enum": ["eq", "neq", "gt", "gte", "lt", "lte"]}
            }
          }
        },
        "idempotency_key": {"type": "string"},
        "expects": {"type": "object"}
      }
    }
  }
}`

var compiledPlanSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://sentinel.schemas.local/execution_plan.schema.json"
	if err := c.AddResource(url, strings.NewReader(planSchema)); err != nil {
		panic(fmt.Sprintf("plan schema load failed: %v", err))
	}
	schema, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("plan schema compile failed: %v", err))
	}
	return schema
}

// Parse validates raw plan JSON against the plan schema and decodes it.
func Parse(raw []byte) (*ExecutionPlan, error) {
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("plan: invalid JSON: %w", err)
	}
	if err := compiledPlanSchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("plan: schema validation failed: %w", err)
	}

	var p ExecutionPlan
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("plan: decode failed: %w", err)
	}
	return &p, nil
}
