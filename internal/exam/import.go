package exam

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// repositorySchema validates repository JSON exported by the grading front
// end before it is accepted into the store. Unknown extra fields (UI
// state) are tolerated; the structural shape is not negotiable.
const repositorySchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["questions", "studentSubmissions"],
  "properties": {
    "examId": {"type": "string"},
    "questions": {
      "type": "array",
      "items": {"$ref": "#/definitions/question"}
    },
    "studentSubmissions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name", "grades"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string"},
          "url": {"type": "string"},
          "grades": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["questionId"],
              "properties": {
                "questionId": {"type": "string", "minLength": 1},
                "confidence": {"type": "number", "minimum": 0, "maximum": 100},
                "aiSuggestedScore": {"type": "number"},
                "score": {"type": ["number", "null"]},
                "manualStatus": {"type": "integer", "minimum": 0},
                "comment": {"type": "string"}
              }
            }
          }
        }
      }
    }
  },
  "definitions": {
    "question": {
      "type": "object",
      "required": ["id", "points"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "name": {"type": "string"},
        "points": {"type": "number", "minimum": 0},
        "subquestions": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["id", "points"],
            "properties": {
              "id": {"type": "string", "minLength": 1},
              "name": {"type": "string"},
              "points": {"type": "number", "minimum": 0}
            }
          }
        }
      }
    }
  }
}`

// ValidationError reports the individual schema violations in an imported
// repository document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("repository document invalid: %s", strings.Join(e.Problems, "; "))
}

// ParseRepository validates raw repository JSON against the schema and
// decodes it. Schema violations come back as a *ValidationError listing
// every failed field.
func ParseRepository(raw []byte) (*Repository, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(repositorySchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return nil, fmt.Errorf("validating repository document: %w", err)
	}
	if !result.Valid() {
		verr := &ValidationError{}
		for _, desc := range result.Errors() {
			verr.Problems = append(verr.Problems, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return nil, verr
	}

	var repo Repository
	if err := json.Unmarshal(raw, &repo); err != nil {
		return nil, fmt.Errorf("decoding repository document: %w", err)
	}
	return &repo, nil
}
