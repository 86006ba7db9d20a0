package prompt

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	_ "embed"
)

//go:embed system.md
var defaultSystemTemplate string

//go:embed user.md
var defaultUserTemplate string

var placeholderRe = regexp.MustCompile(`\{\{[A-Z_]+\}\}`)

// Prompt is the immutable system/user instruction pair sent to the model.
type Prompt struct {
	System string
	User   string
}

// Overrides replaces the embedded default templates. Empty fields keep the
// defaults.
type Overrides struct {
	SystemTemplate string
	UserTemplate   string
}

// Assembler builds prompts from a fixed resume, the rendered conversation and
// the current question. The resume and templates are set once at construction
// and never change for the process lifetime.
type Assembler struct {
	system string
	user   string
	resume string
}

// New creates an assembler for the given resume text.
func New(resume string, overrides Overrides) (*Assembler, error) {
	if strings.TrimSpace(resume) == "" {
		return nil, errors.New("resume text must not be empty")
	}

	system := defaultSystemTemplate
	if strings.TrimSpace(overrides.SystemTemplate) != "" {
		system = overrides.SystemTemplate
	}

	user := defaultUserTemplate
	if strings.TrimSpace(overrides.UserTemplate) != "" {
		user = overrides.UserTemplate
	}

	return &Assembler{
		system: system,
		user:   user,
		resume: resume,
	}, nil
}

// Build interpolates the user template with the resume, the rendered
// conversation and the question. A placeholder left unresolved after
// substitution means the template and the assembler disagree; that is a bug,
// not a user-facing condition.
func (a *Assembler) Build(question, conversation string) (Prompt, error) {
	user := strings.ReplaceAll(a.user, "{{RESUME}}", a.resume)
	user = strings.ReplaceAll(user, "{{CONVERSATION}}", conversation)
	user = strings.ReplaceAll(user, "{{QUESTION}}", question)

	if leftover := placeholderRe.FindString(user); leftover != "" {
		return Prompt{}, fmt.Errorf("unresolved placeholder %s in user template", leftover)
	}

	if leftover := placeholderRe.FindString(a.system); leftover != "" {
		return Prompt{}, fmt.Errorf("unresolved placeholder %s in system template", leftover)
	}

	return Prompt{System: a.system, User: user}, nil
}
