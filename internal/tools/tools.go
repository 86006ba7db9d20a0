package tools

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"google.golang.org/genai"
)

// now is swappable in tests.
var now = time.Now

const defaultDateLayout = "2006-01-02"

// Func executes a tool call with the model-supplied arguments and returns the
// payload sent back to the model. Tools must be pure: no shared state, no
// access to the transcript or the resume.
type Func func(args map[string]any) (map[string]any, error)

// Tool pairs a genai function declaration with its implementation.
type Tool struct {
	Declaration *genai.FunctionDeclaration
	Call        Func
}

// Registry is a capability table the model can dispatch into mid-generation.
// The registry itself never branches on which tool was called.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any previous tool with the same name.
func (r *Registry) Register(t Tool) error {
	if t.Declaration == nil || t.Declaration.Name == "" {
		return fmt.Errorf("tool declaration with a name is required")
	}
	if t.Call == nil {
		return fmt.Errorf("tool %q has no implementation", t.Declaration.Name)
	}

	if _, ok := r.tools[t.Declaration.Name]; !ok {
		r.order = append(r.order, t.Declaration.Name)
	}
	r.tools[t.Declaration.Name] = t

	return nil
}

// Declarations returns the function declarations in registration order, for
// advertising to the model invocation.
func (r *Registry) Declarations() []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(r.order))
	for _, name := range r.order {
		decls = append(decls, r.tools[name].Declaration)
	}
	return decls
}

// Dispatch runs the named tool with the provided arguments.
func (r *Registry) Dispatch(name string, args map[string]any) (map[string]any, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}

	return tool.Call(args)
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}

// Default returns the built-in tool set: today and current_year.
func Default() *Registry {
	r := NewRegistry()

	// Registration of the built-ins cannot fail.
	_ = r.Register(Tool{
		Declaration: &genai.FunctionDeclaration{
			Name:        "today",
			Description: "Returns the current date. Useful to compute durations from resume dates.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"format": {
						Type:        genai.TypeString,
						Description: "Optional Go time layout for the returned date, defaults to 2006-01-02.",
					},
				},
			},
		},
		Call: today,
	})

	_ = r.Register(Tool{
		Declaration: &genai.FunctionDeclaration{
			Name:        "current_year",
			Description: "Returns the current calendar year as an integer.",
		},
		Call: currentYear,
	})

	return r
}

func today(args map[string]any) (map[string]any, error) {
	var params struct {
		Format string `mapstructure:"format"`
	}

	if err := mapstructure.Decode(args, &params); err != nil {
		return nil, fmt.Errorf("decode today arguments: %w", err)
	}

	layout := params.Format
	if layout == "" {
		layout = defaultDateLayout
	}

	return map[string]any{"date": now().Format(layout)}, nil
}

func currentYear(map[string]any) (map[string]any, error) {
	return map[string]any{"year": now().Year()}, nil
}
