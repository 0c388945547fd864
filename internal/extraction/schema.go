package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	dErrors "mailroom/pkg/domain-errors"
)

// payloadSchema is the contract the model's output must satisfy. Every field
// is optional; the container itself must be a structurally valid object with
// no unknown top-level keys, so a hallucinated shape never reaches storage.
const payloadSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"project_name":      {"type": "string", "maxLength": 256},
		"project_address":   {"type": "string", "maxLength": 512},
		"decisions": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"decision":  {"type": "string"},
					"made_by":   {"type": ["string", "null"]},
					"timestamp": {"type": ["string", "null"]},
					"affects":   {"type": "array", "items": {"type": "string"}}
				},
				"required": ["decision"],
				"additionalProperties": false
			}
		},
		"action_items": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"task":     {"type": "string"},
					"owner":    {"type": ["string", "null"]},
					"deadline": {"type": ["string", "null"]},
					"priority": {"type": ["string", "null"]}
				},
				"required": ["task"],
				"additionalProperties": false
			}
		},
		"scope_changes":     {"type": "array", "items": {"type": "string"}},
		"budget_mentions":   {"type": "array", "items": {"type": "string"}},
		"timeline_changes":  {"type": "array", "items": {"type": "string"}},
		"risks":             {"type": "array", "items": {"type": "string"}},
		"key_points":        {"type": "array", "items": {"type": "string"}},
		"people_mentioned":  {"type": "array", "items": {"type": "string"}},
		"requires_response": {"type": "boolean"}
	},
	"additionalProperties": false
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(payloadSchema))
		if err != nil {
			schemaErr = fmt.Errorf("parse payload schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("payload.json", doc); err != nil {
			schemaErr = fmt.Errorf("register payload schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("payload.json")
	})
	return schema, schemaErr
}

// ParsePayload validates raw model output against the payload schema and
// decodes it. Violations yield extraction_schema, which the orchestrator
// treats as a retryable attempt failure.
func ParsePayload(raw []byte) (*Payload, error) {
	sch, err := compiledSchema()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "payload schema unavailable")
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeExtractionSchema, "model output is not valid JSON")
	}
	if err := sch.Validate(inst); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeExtractionSchema, "model output violates payload schema")
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeExtractionSchema, "model output does not decode")
	}
	return &p, nil
}
