package ai

import (
	"context"

	"github.com/spigell/resumebot/internal/prompt"
)

// Answer is the structured result decoded from the model's constrained output.
type Answer struct {
	// Answer is the user-facing text. Always populated: the model substitutes
	// a generic fallback when the resume lacks the requested fact.
	Answer string
	// Found reports whether the fact was present in the resume, as opposed to
	// the fallback path being taken. Not an error either way.
	Found bool
	// Raw keeps the undecoded model output for debug logging.
	Raw string
}

// Generator produces the raw model output for a prompt. Implementations own
// transport concerns such as retries and rate limiting; callers issue a single
// blocking invocation.
type Generator interface {
	Generate(ctx context.Context, p prompt.Prompt) (string, error)
	Model() string
}
