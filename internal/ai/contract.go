package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// ErrNoContent signals that the model invocation yielded no output at all.
// This is an infrastructure failure, distinct from a low-confidence answer,
// and must not be persisted or presented as a normal reply.
var ErrNoContent = errors.New("no content in model response")

// SchemaError reports model output that does not decode into the answer
// contract: not JSON, or a required field missing or mistyped.
type SchemaError struct {
	Reason string
	Raw    string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("model response violates the answer schema: %s", e.Reason)
}

// ResponseSchema describes the exact JSON shape the model must emit. It is
// supplied to the invocation as an output constraint, not parsed best-effort
// from free text.
func ResponseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"answer": {
				Type:        genai.TypeString,
				Description: "Answer to the question in Markdown, may default to a generic answer if the resume is missing data.",
			},
			"foundAnswer": {
				Type:        genai.TypeBoolean,
				Description: "True if the answer was found in the resume, false if the resume is missing data.",
			},
		},
		Required:         []string{"answer", "foundAnswer"},
		PropertyOrdering: []string{"answer", "foundAnswer"},
	}
}

// ParseAnswer decodes raw model output into an Answer. It returns ErrNoContent
// for blank output and a *SchemaError when the output does not match the
// contract. The answer text is returned unchanged.
func ParseAnswer(raw string) (*Answer, error) {
	cleaned := extractJSON(raw)
	if cleaned == "" {
		return nil, ErrNoContent
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, &SchemaError{Reason: fmt.Sprintf("invalid JSON: %v", err), Raw: raw}
	}

	answerValue, ok := data["answer"]
	if !ok {
		return nil, &SchemaError{Reason: "missing required field answer", Raw: raw}
	}
	answer, ok := answerValue.(string)
	if !ok {
		return nil, &SchemaError{Reason: "field answer is not a string", Raw: raw}
	}

	foundValue, ok := data["foundAnswer"]
	if !ok {
		return nil, &SchemaError{Reason: "missing required field foundAnswer", Raw: raw}
	}
	found, ok := foundValue.(bool)
	if !ok {
		return nil, &SchemaError{Reason: "field foundAnswer is not a boolean", Raw: raw}
	}

	return &Answer{Answer: answer, Found: found, Raw: raw}, nil
}

// extractJSON strips Markdown code fences some models wrap around JSON output.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}
