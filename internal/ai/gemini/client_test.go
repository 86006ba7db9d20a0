package gemini

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/resumebot/internal/prompt"
	"github.com/spigell/resumebot/internal/tools"
)

type fakeCall struct {
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

type fakeResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

type fakeModels struct {
	calls []fakeCall
	queue []fakeResponse
}

func (f *fakeModels) GenerateContent(_ context.Context, _ string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls = append(f.calls, fakeCall{contents: contents, config: config})
	if len(f.queue) == 0 {
		return nil, errors.New("unexpected call")
	}
	next := f.queue[0]
	f.queue = f.queue[1:]
	return next.resp, next.err
}

func (f *fakeModels) enqueueText(text string) {
	f.queue = append(f.queue, fakeResponse{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}})
}

func (f *fakeModels) enqueueFunctionCall(name string, args map[string]any) {
	f.queue = append(f.queue, fakeResponse{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{Name: name, Args: args}}},
			},
		}},
	}})
}

func (f *fakeModels) enqueueError(err error) {
	f.queue = append(f.queue, fakeResponse{err: err})
}

func newTestGenerator(models *fakeModels) *Generator {
	return &Generator{
		models:     models,
		model:      "gemini-pro",
		registry:   tools.Default(),
		maxRetries: 2,
		toolRounds: 2,
		logger:     zap.NewNop(),
	}
}

func noWait(t *testing.T) {
	t.Helper()

	original := wait
	wait = func(context.Context, time.Duration) error { return nil }
	t.Cleanup(func() { wait = original })
}

func testPrompt() prompt.Prompt {
	return prompt.Prompt{System: "system", User: "message"}
}

func TestGenerateSendsSchemaAndTools(t *testing.T) {
	models := &fakeModels{}
	models.enqueueText(`{"answer":"X","foundAnswer":true}`)

	g := newTestGenerator(models)

	output, err := g.Generate(context.Background(), testPrompt())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output != `{"answer":"X","foundAnswer":true}` {
		t.Fatalf("unexpected output: %q", output)
	}

	if len(models.calls) != 1 {
		t.Fatalf("expected one call, got %d", len(models.calls))
	}

	config := models.calls[0].config
	if config.SystemInstruction == nil || config.SystemInstruction.Parts[0].Text != "system" {
		t.Fatalf("expected system instruction to be set")
	}

	if config.ResponseMIMEType != "application/json" {
		t.Fatalf("unexpected response mime type: %q", config.ResponseMIMEType)
	}

	if config.ResponseSchema == nil {
		t.Fatal("expected the answer schema to be sent as an output constraint")
	}

	if len(config.Tools) != 1 || len(config.Tools[0].FunctionDeclarations) != 2 {
		t.Fatalf("expected the tool declarations to be advertised")
	}
}

func TestGenerateResolvesToolCalls(t *testing.T) {
	models := &fakeModels{}
	models.enqueueFunctionCall("current_year", nil)
	models.enqueueText(`{"answer":"It is 19 years ago.","foundAnswer":true}`)

	g := newTestGenerator(models)

	output, err := g.Generate(context.Background(), testPrompt())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output == "" {
		t.Fatal("expected final output after tool resolution")
	}

	if len(models.calls) != 2 {
		t.Fatalf("expected two calls, got %d", len(models.calls))
	}

	// The second call must carry the model turn plus the tool response.
	followUp := models.calls[1].contents
	if len(followUp) != 3 {
		t.Fatalf("expected user, model and tool response contents, got %d", len(followUp))
	}

	var foundResponse bool
	for _, part := range followUp[2].Parts {
		if part.FunctionResponse != nil && part.FunctionResponse.Name == "current_year" {
			foundResponse = true
		}
	}
	if !foundResponse {
		t.Fatalf("expected a function response for current_year, got %+v", followUp[2])
	}
}

func TestGenerateFailsOnUnknownTool(t *testing.T) {
	models := &fakeModels{}
	models.enqueueFunctionCall("read_secret", nil)

	g := newTestGenerator(models)

	if _, err := g.Generate(context.Background(), testPrompt()); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestGenerateStopsRunawayToolLoops(t *testing.T) {
	models := &fakeModels{}
	for range 4 {
		models.enqueueFunctionCall("current_year", nil)
	}

	g := newTestGenerator(models)

	if _, err := g.Generate(context.Background(), testPrompt()); err == nil {
		t.Fatal("expected error when the tool round limit is exceeded")
	}
}

func TestGenerateRetriesOnTemporaryError(t *testing.T) {
	noWait(t)

	models := &fakeModels{}
	models.enqueueError(genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"})
	models.enqueueText("retry ok")

	g := newTestGenerator(models)

	output, err := g.Generate(context.Background(), testPrompt())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if output != "retry ok" {
		t.Fatalf("unexpected output: %q", output)
	}

	if len(models.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.calls))
	}
}

func TestGenerateStopsAfterRetriesExhausted(t *testing.T) {
	noWait(t)

	models := &fakeModels{}
	models.enqueueError(genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"})
	models.enqueueError(genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"})

	g := newTestGenerator(models)

	if _, err := g.Generate(context.Background(), testPrompt()); err == nil {
		t.Fatal("expected error after retries exhausted")
	}

	if len(models.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.calls))
	}
}

func TestGenerateDoesNotRetryPermanentErrors(t *testing.T) {
	models := &fakeModels{}
	models.enqueueError(genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"})

	g := newTestGenerator(models)

	if _, err := g.Generate(context.Background(), testPrompt()); err == nil {
		t.Fatal("expected error for permanent failure")
	}

	if len(models.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(models.calls))
	}
}

func TestGenerateReturnsEmptyOutputForDecoderToReject(t *testing.T) {
	models := &fakeModels{}
	models.queue = append(models.queue, fakeResponse{resp: &genai.GenerateContentResponse{}})

	g := newTestGenerator(models)

	output, err := g.Generate(context.Background(), testPrompt())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output != "" {
		t.Fatalf("expected empty output, got %q", output)
	}
}
