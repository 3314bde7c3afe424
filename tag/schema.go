package tag

import (
	"github.com/google/jsonschema-go/jsonschema"
)

// Schema returns the JSON Schema (Draft 7) describing a tag file as
// accepted by [ParseSpecs].
func Schema() *jsonschema.Schema {
	structured := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"enabled": {
				Type:        "boolean",
				Description: "whether messages with this tag are dispatched",
			},
			"error": {
				Type:        "boolean",
				Description: "whether a call-site error is attached to messages with this tag",
			},
			"code": {
				Type:        "integer",
				Description: "informational severity rank, lower is more severe",
			},
		},
		AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
	}

	legacy := &jsonschema.Schema{
		Type:        "boolean",
		Description: "legacy shape: enabled state, errors enabled",
	}

	return &jsonschema.Schema{
		Schema:      "http://json-schema.org/draft-07/schema#",
		Title:       "taglog tag file",
		Type:        "object",
		Description: "Mapping of tag name to tag state.",
		AdditionalProperties: &jsonschema.Schema{
			AnyOf: []*jsonschema.Schema{legacy, structured, {Type: "null"}},
		},
	}
}
