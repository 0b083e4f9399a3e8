package validate

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/caretta-labs/trackserver"
)

// createExperimentSchema and updateExperimentSchema are inline JSON Schema
// documents for the two request bodies SPEC_FULL.md §4 supplements
// (create_experiment's tags array, update_experiment's rename body),
// validated the way the teacher's transformer.go resolves and validates an
// arbitrary schema map against a decoded JSON payload — generalised here to
// two fixed, compile-time-known schemas instead of one loaded from a
// registry.
var createExperimentSchema = mustCompile(`{
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"artifact_location": {"type": "string"},
		"tags": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["key", "value"],
				"properties": {
					"key": {"type": "string", "minLength": 1},
					"value": {"type": "string"}
				}
			}
		}
	}
}`)

var updateExperimentSchema = mustCompile(`{
	"type": "object",
	"required": ["experiment_id", "new_name"],
	"properties": {
		"experiment_id": {"type": "string", "minLength": 1},
		"new_name": {"type": "string", "minLength": 1}
	}
}`)

func mustCompile(raw string) *jsonschema.Resolved {
	var schema jsonschema.Schema
	if err := json.Unmarshal([]byte(raw), &schema); err != nil {
		panic(fmt.Sprintf("validate: malformed inline schema: %v", err))
	}
	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		panic(fmt.Sprintf("validate: failed to resolve inline schema: %v", err))
	}
	return resolved
}

// CreateExperimentBody validates a decoded create_experiment request body
// against createExperimentSchema before it reaches the store.
func CreateExperimentBody(body any) error {
	return validateAgainst(createExperimentSchema, body, "create_experiment request body")
}

// UpdateExperimentBody validates a decoded update_experiment request body
// against updateExperimentSchema before it reaches the store.
func UpdateExperimentBody(body any) error {
	return validateAgainst(updateExperimentSchema, body, "update_experiment request body")
}

func validateAgainst(schema *jsonschema.Resolved, body any, what string) error {
	if err := schema.Validate(body); err != nil {
		return trackserver.NewInvalidParameter(trackserver.CodeInvalidBody, fmt.Sprintf("%s failed validation: %v", what, err))
	}
	return nil
}
