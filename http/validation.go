package x402http

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// paymentPayloadSchema validates the decoded payment payload before it
// reaches a scheme engine. It pins the exact-EVM payload shape: a hex
// signature plus the six authorization fields as decimal strings.
const paymentPayloadSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["x402Version", "payload"],
	"properties": {
		"x402Version": {"type": "integer", "minimum": 1, "maximum": 2},
		"payload": {
			"type": "object",
			"required": ["authorization"],
			"properties": {
				"signature": {"type": "string", "pattern": "^0x[0-9a-fA-F]+$"},
				"authorization": {
					"type": "object",
					"required": ["from", "to", "value", "validAfter", "validBefore", "nonce"],
					"properties": {
						"from":        {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
						"to":          {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
						"value":       {"type": "string", "pattern": "^[0-9]+$"},
						"validAfter":  {"type": "string", "pattern": "^[0-9]+$"},
						"validBefore": {"type": "string", "pattern": "^[0-9]+$"},
						"nonce":       {"type": "string", "pattern": "^0x[0-9a-fA-F]{64}$"}
					}
				}
			}
		}
	}
}`

var compiledPayloadSchema = gojsonschema.NewStringLoader(paymentPayloadSchema)

// ValidatePayloadJSON checks a raw payment payload document against the wire
// schema and returns a single aggregated error when it does not conform.
func ValidatePayloadJSON(document []byte) error {
	result, err := gojsonschema.Validate(compiledPayloadSchema, gojsonschema.NewBytesLoader(document))
	if err != nil {
		return fmt.Errorf("payload schema validation failed: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("invalid payment payload: %s", strings.Join(problems, "; "))
}
