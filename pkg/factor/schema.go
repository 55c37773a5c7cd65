package factor

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// derivationSchema validates the activity_id_fields document a tenant
// supplies with a factor. It guards shape only; formula expressions are
// validated separately by the sandbox parser.
const derivationSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "required": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    },
    "fields": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "label": {"type": "string"},
          "type": {"type": "string"},
          "unit": {"type": "string"},
          "default": {}
        },
        "additionalProperties": false
      }
    },
    "formula": {
      "type": "object",
      "properties": {
        "expression": {"type": "string", "minLength": 1},
        "output": {"type": "string"},
        "unit": {"type": "string"}
      },
      "required": ["expression"],
      "additionalProperties": false
    },
    "quantity_field": {"type": "string"}
  },
  "additionalProperties": false
}`

var compiledDerivationSchema = jsonschema.MustCompileString("derivation_spec.json", derivationSchema)

// ValidateDerivationSpec checks a derivation spec against the schema.
// Pass either a DerivationSpec or the raw JSON document received from a
// tenant.
func ValidateDerivationSpec(spec any) error {
	raw, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("derivation spec is not serializable: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("derivation spec is not valid JSON: %w", err)
	}
	if doc == nil {
		return nil
	}
	if err := compiledDerivationSchema.Validate(doc); err != nil {
		return fmt.Errorf("invalid derivation spec: %w", err)
	}
	return nil
}
