// Package validation defines the pass/fail gate run on canonical content before persistence.
package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Validator accepts or rejects a value, giving a reason on rejection.
type Validator interface {
	Validate(value any) (ok bool, reason string)
}

// Func adapts a function to Validator.
type Func func(value any) (bool, string)

func (f Func) Validate(value any) (bool, string) {
	return f(value)
}

// Chain runs validators in order and stops at the first rejection.
type Chain []Validator

func (c Chain) Validate(value any) (bool, string) {
	for _, v := range c {
		if v == nil {
			continue
		}
		if ok, reason := v.Validate(value); !ok {
			return false, reason
		}
	}
	return true, ""
}

// SchemaValidator checks values against a JSON schema.
type SchemaValidator struct {
	schema *gojsonschema.Schema
}

// NewSchemaValidator compiles a JSON schema document.
func NewSchemaValidator(schemaJSON string) (*SchemaValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &SchemaValidator{schema: schema}, nil
}

func (v *SchemaValidator) Validate(value any) (bool, string) {
	res, err := v.schema.Validate(gojsonschema.NewGoLoader(value))
	if err != nil {
		return false, fmt.Sprintf("schema validation: %v", err)
	}
	if res.Valid() {
		return true, ""
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return false, strings.Join(msgs, "; ")
}

// SlideContentSchema describes the canonical content map of a slide.
const SlideContentSchema = `{
  "type": "object",
  "properties": {
    "full_text":      {"type": ["string", "null"]},
    "slide_plan":     {"type": ["string", "null"]},
    "content_html":   {"type": ["string", "null"]},
    "narrative_text": {"type": ["string", "null"]}
  }
}`

// NewSlideContentValidator returns a validator for canonical slide content.
func NewSlideContentValidator() (*SchemaValidator, error) {
	return NewSchemaValidator(SlideContentSchema)
}
