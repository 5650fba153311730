package handlers

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/thushan/flowgate/internal/core/domain"
)

// The schemas only check what routing and translation rely on. Everything
// else in a body is the backend's business and passes through untouched.
const (
	modelProperty   = `"model": {"type": "string", "minLength": 1}`
	streamProperty  = `"stream": {"type": "boolean"}`
	optionsProperty = `"options": {"type": "object"}`

	messagesProperty = `"messages": {
		"type": "array",
		"items": {
			"type": "object",
			"required": ["role"],
			"properties": {"role": {"type": "string", "minLength": 1}}
		}
	}`

	textOrListProperty = `{"oneOf": [
		{"type": "string"},
		{"type": "array", "items": {"type": "string"}, "minItems": 1}
	]}`
)

var schemaSources = map[domain.Dialect]map[domain.RequestKind]string{
	domain.DialectOllama: {
		domain.KindCompletions: `{
			"type": "object",
			"required": ["model"],
			"properties": {` + modelProperty + `, ` + streamProperty + `, ` + optionsProperty + `,
				"prompt": {"type": "string"},
				"system": {"type": "string"}
			}
		}`,
		domain.KindChat: `{
			"type": "object",
			"required": ["model", "messages"],
			"properties": {` + modelProperty + `, ` + streamProperty + `, ` + optionsProperty + `, ` + messagesProperty + `}
		}`,
		domain.KindEmbeddings: `{
			"type": "object",
			"required": ["model"],
			"anyOf": [{"required": ["prompt"]}, {"required": ["input"]}],
			"properties": {` + modelProperty + `, ` + optionsProperty + `,
				"prompt": {"type": "string"},
				"input": ` + textOrListProperty + `
			}
		}`,
		domain.KindPull:   managementSchema,
		domain.KindShow:   managementSchema,
		domain.KindDelete: managementSchema,
	},
	domain.DialectOpenAI: {
		domain.KindCompletions: `{
			"type": "object",
			"required": ["model", "prompt"],
			"properties": {` + modelProperty + `, ` + streamProperty + `,
				"prompt": ` + textOrListProperty + `,
				"max_tokens": {"type": "integer", "minimum": 0}
			}
		}`,
		domain.KindChat: `{
			"type": "object",
			"required": ["model", "messages"],
			"properties": {` + modelProperty + `, ` + streamProperty + `, ` + messagesProperty + `,
				"max_tokens": {"type": "integer", "minimum": 0}
			}
		}`,
		domain.KindEmbeddings: `{
			"type": "object",
			"required": ["model", "input"],
			"properties": {` + modelProperty + `,
				"input": ` + textOrListProperty + `
			}
		}`,
	},
}

// ollama accepts both "model" and the older "name" on management calls
const managementSchema = `{
	"type": "object",
	"anyOf": [{"required": ["model"]}, {"required": ["name"]}],
	"properties": {
		"model": {"type": "string", "minLength": 1},
		"name": {"type": "string", "minLength": 1}
	}
}`

// PayloadValidator checks client bodies before any backend is chosen.
type PayloadValidator struct {
	schemas map[domain.Dialect]map[domain.RequestKind]*gojsonschema.Schema
}

func NewPayloadValidator() (*PayloadValidator, error) {
	v := &PayloadValidator{schemas: make(map[domain.Dialect]map[domain.RequestKind]*gojsonschema.Schema)}
	for dialect, kinds := range schemaSources {
		v.schemas[dialect] = make(map[domain.RequestKind]*gojsonschema.Schema, len(kinds))
		for kind, src := range kinds {
			schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
			if err != nil {
				return nil, fmt.Errorf("compiling %s %s schema: %w", dialect, kind, err)
			}
			v.schemas[dialect][kind] = schema
		}
	}
	return v, nil
}

// Validate returns a *domain.ValidationError naming the first offending
// fields, or nil. Kinds without a schema (listings) accept any body.
func (v *PayloadValidator) Validate(dialect domain.Dialect, kind domain.RequestKind, body []byte) error {
	schema, ok := v.schemas[dialect][kind]
	if !ok {
		return nil
	}
	if len(body) == 0 {
		return &domain.ValidationError{Field: "body", Value: "", Reason: "request body is required"}
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if result.Valid() {
		return nil
	}

	errs := result.Errors()
	fields := make([]string, 0, len(errs))
	reasons := make([]string, 0, len(errs))
	for _, e := range errs {
		fields = append(fields, e.Field())
		reasons = append(reasons, e.String())
	}
	return &domain.ValidationError{
		Field:  strings.Join(fields, ","),
		Value:  string(kind),
		Reason: strings.Join(reasons, "; "),
	}
}
