package retrieveandgenerate

import (
	"fmt"
	"strings"

	"kb-retrieval/internal/common/errors"
	"kb-retrieval/internal/common/validation"
)

const eventSchemaSource = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["prompt"],
	"properties": {
		"prompt": {
			"type": "string",
			"minLength": 1
		}
	}
}`

var eventSchema = validation.NewSchema(eventSchemaSource)

// ParseEvent validates the event and extracts the prompt. Keys other than
// "prompt" are ignored.
func ParseEvent(event Event) (*Request, error) {
	result, err := eventSchema.Validate(map[string]interface{}(event))
	if err != nil {
		return nil, errors.NewInvalidEventError(err.Error())
	}
	if !result.Valid {
		return nil, errors.NewInvalidEventError(
			fmt.Sprintf("Validation errors: %s", strings.Join(result.GetErrorMessages(), ", ")),
		).WithMetadata("fields", fieldsOf(result))
	}

	prompt, _ := event["prompt"].(string)
	return &Request{Prompt: prompt}, nil
}

func fieldsOf(result *validation.ValidationResult) []string {
	fields := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		fields = append(fields, e.Field)
	}
	return fields
}
