package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const candidateSchemaURL = "candidate.json"

// candidateSchema is the shape the model is asked to return. Dates are
// "YYYY-MM-DD" or RFC 3339; clock times are 24h "HH:MM".
const candidateSchema = `{
  "type": "object",
  "required": ["title", "events"],
  "additionalProperties": false,
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "course_code": {"type": "string"},
    "instructor": {"type": "string"},
    "term": {"type": "string"},
    "identifier": {"type": "string"},
    "description": {"type": "string"},
    "meetings": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["days", "start_time", "end_time"],
        "additionalProperties": false,
        "properties": {
          "days": {"type": "array", "minItems": 1, "items": {"enum": ["MON", "TUE", "WED", "THU", "FRI", "SAT", "SUN"]}},
          "start_time": {"type": "string", "pattern": "^[0-2][0-9]:[0-5][0-9]$"},
          "end_time": {"type": "string", "pattern": "^[0-2][0-9]:[0-5][0-9]$"},
          "location": {"type": "string"}
        }
      }
    },
    "events": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["title", "category", "start"],
        "additionalProperties": false,
        "properties": {
          "title": {"type": "string", "minLength": 1},
          "category": {"enum": ["lecture", "assignment", "exam", "quiz", "project", "holiday", "other"]},
          "start": {"type": "string", "minLength": 10},
          "end": {"type": ["string", "null"]},
          "location": {"type": "string"},
          "description": {"type": "string"}
        }
      }
    }
  }
}`

func compileCandidateSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(candidateSchemaURL, strings.NewReader(candidateSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	s, err := c.Compile(candidateSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return s, nil
}

func validateAgainst(schema *jsonschema.Schema, raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("response is not JSON: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("response does not match schema: %w", err)
	}
	return nil
}
