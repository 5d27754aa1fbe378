// Package schemas validates gate payloads and gate responses against JSON
// Schemas at the gate-payload boundary. Payload shapes vary by gate kind, so
// they are checked here instead of trusted implicitly.
package schemas

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/jonathan/resume-author/internal/types"
)

//go:embed gate_payload.schema.json
var gatePayloadSchema []byte

//go:embed gate_response.schema.json
var gateResponseSchema []byte

// ValidationError aggregates field-level schema violations.
type ValidationError struct {
	Subject string
	Errors  []FieldError
}

// FieldError is a single violation at a specific field path.
type FieldError struct {
	Field   string
	Message string
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s validation failed:", ve.Subject)
	for i, err := range ve.Errors {
		fmt.Fprintf(&sb, "\n  %d. %s: %s", i+1, err.Field, err.Message)
	}
	return sb.String()
}

func validate(subject string, schema []byte, document []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema),
		gojsonschema.NewBytesLoader(document),
	)
	if err != nil {
		return fmt.Errorf("failed to validate %s: %w", subject, err)
	}
	if result.Valid() {
		return nil
	}
	ve := &ValidationError{Subject: subject}
	for _, desc := range result.Errors() {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   desc.Field(),
			Message: desc.Description(),
		})
	}
	return ve
}

// ValidateGatePayload checks a payload against the gate payload schema and
// the tagged-union shape rule (exactly one variant, matching the kind).
func ValidateGatePayload(payload *types.GatePayload) error {
	if err := payload.Validate(); err != nil {
		return err
	}
	document, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal gate payload: %w", err)
	}
	return validate("gate payload", gatePayloadSchema, document)
}

// ValidateGateResponse checks a raw client response against the gate
// response schema before it reaches any stage implementation.
func ValidateGateResponse(response json.RawMessage) error {
	if len(response) == 0 {
		return &ValidationError{
			Subject: "gate response",
			Errors:  []FieldError{{Field: "(root)", Message: "response body is required"}},
		}
	}
	return validate("gate response", gateResponseSchema, response)
}
