package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/spigell/resumebot/internal/ai"
	"github.com/spigell/resumebot/internal/prompt"
	"github.com/spigell/resumebot/internal/transcript"
)

type stubGenerator struct {
	response   string
	err        error
	calls      int
	lastPrompt prompt.Prompt
}

func (s *stubGenerator) Generate(_ context.Context, p prompt.Prompt) (string, error) {
	s.calls++
	s.lastPrompt = p
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubGenerator) Model() string {
	return "stub-model"
}

type appendRecord struct {
	conversationID string
	role           transcript.Role
	text           string
}

type fakeTranscripts struct {
	rendered  string
	renderErr error
	appendErr error
	appends   []appendRecord
}

func (f *fakeTranscripts) Append(_ context.Context, conversationID string, role transcript.Role, text string) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appends = append(f.appends, appendRecord{conversationID: conversationID, role: role, text: text})
	return nil
}

func (f *fakeTranscripts) Render(_ context.Context, _ string) (string, error) {
	if f.renderErr != nil {
		return "", f.renderErr
	}
	return f.rendered, nil
}

func newTestService(t *testing.T, generator *stubGenerator, transcripts *fakeTranscripts) *Service {
	t.Helper()

	assembler, err := prompt.New("I live in Paris, France.", prompt.Overrides{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	service, err := NewService(generator, assembler, transcripts, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return service
}

func TestAnswerRejectsEmptyQuestionBeforeModelCall(t *testing.T) {
	generator := &stubGenerator{}
	service := newTestService(t, generator, &fakeTranscripts{})

	for _, question := range []string{"", "   ", "\n\t "} {
		if _, err := service.Answer(context.Background(), question, "conv-1"); !errors.Is(err, ErrEmptyQuestion) {
			t.Fatalf("expected ErrEmptyQuestion for %q, got %v", question, err)
		}
	}

	if generator.calls != 0 {
		t.Fatalf("expected no model invocations, got %d", generator.calls)
	}
}

func TestAnswerPersistsBothTurnsInOrder(t *testing.T) {
	generator := &stubGenerator{response: `{"answer":"Paris, France","foundAnswer":true}`}
	transcripts := &fakeTranscripts{rendered: "earlier question\nearlier answer"}
	service := newTestService(t, generator, transcripts)

	answer, err := service.Answer(context.Background(), "Where are you based in?", "conv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if answer != "Paris, France" {
		t.Fatalf("unexpected answer: %q", answer)
	}

	if len(transcripts.appends) != 2 {
		t.Fatalf("expected two appends, got %d", len(transcripts.appends))
	}

	if transcripts.appends[0].role != transcript.RoleUser || transcripts.appends[0].text != "Where are you based in?" {
		t.Fatalf("unexpected first append: %+v", transcripts.appends[0])
	}

	if transcripts.appends[1].role != transcript.RoleAssistant || transcripts.appends[1].text != "Paris, France" {
		t.Fatalf("unexpected second append: %+v", transcripts.appends[1])
	}

	if !strings.Contains(generator.lastPrompt.User, "earlier question") {
		t.Fatalf("expected prompt to contain the rendered transcript, got: %s", generator.lastPrompt.User)
	}
}

func TestAnswerPersistsFallbackTurns(t *testing.T) {
	generator := &stubGenerator{response: `{"answer":"Sorry, the resume does not mention that.","foundAnswer":false}`}
	transcripts := &fakeTranscripts{}
	service := newTestService(t, generator, transcripts)

	answer, err := service.Answer(context.Background(), "What is your favorite dish?", "conv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if answer == "" {
		t.Fatal("expected a non-empty fallback answer")
	}

	// The persistence policy is unconditional: fallback turns are stored too.
	if len(transcripts.appends) != 2 {
		t.Fatalf("expected two appends, got %d", len(transcripts.appends))
	}
}

func TestAnswerWithoutConversationIDSkipsPersistence(t *testing.T) {
	generator := &stubGenerator{response: `{"answer":"Paris, France","foundAnswer":true}`}
	transcripts := &fakeTranscripts{}
	service := newTestService(t, generator, transcripts)

	if _, err := service.Answer(context.Background(), "Where are you based in?", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(transcripts.appends) != 0 {
		t.Fatalf("expected no appends, got %d", len(transcripts.appends))
	}
}

func TestAnswerFailsWhenTranscriptStoreIsUnreachable(t *testing.T) {
	generator := &stubGenerator{response: `{"answer":"X","foundAnswer":true}`}
	transcripts := &fakeTranscripts{renderErr: errors.New("connection refused")}
	service := newTestService(t, generator, transcripts)

	if _, err := service.Answer(context.Background(), "question", "conv-1"); err == nil {
		t.Fatal("expected error when the store is unreachable")
	}

	// An unreachable store must not masquerade as empty history.
	if generator.calls != 0 {
		t.Fatalf("expected no model invocations, got %d", generator.calls)
	}
}

func TestAnswerEmptyModelResponse(t *testing.T) {
	generator := &stubGenerator{response: ""}
	transcripts := &fakeTranscripts{}
	service := newTestService(t, generator, transcripts)

	_, err := service.Answer(context.Background(), "question", "conv-1")
	if !errors.Is(err, ai.ErrNoContent) {
		t.Fatalf("expected ErrNoContent, got %v", err)
	}

	if len(transcripts.appends) != 0 {
		t.Fatalf("expected no persistence on empty response, got %d appends", len(transcripts.appends))
	}
}

func TestAnswerSchemaViolationAbortsWithoutPersistence(t *testing.T) {
	generator := &stubGenerator{response: `{"foundAnswer":true}`}
	transcripts := &fakeTranscripts{}
	service := newTestService(t, generator, transcripts)

	_, err := service.Answer(context.Background(), "question", "conv-1")

	var schemaErr *ai.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}

	if len(transcripts.appends) != 0 {
		t.Fatalf("expected no persistence on decode failure, got %d appends", len(transcripts.appends))
	}
}

func TestAnswerPropagatesGeneratorError(t *testing.T) {
	generator := &stubGenerator{err: errors.New("transport failure")}
	transcripts := &fakeTranscripts{}
	service := newTestService(t, generator, transcripts)

	if _, err := service.Answer(context.Background(), "question", "conv-1"); err == nil {
		t.Fatal("expected error from generator to propagate")
	}

	if len(transcripts.appends) != 0 {
		t.Fatalf("expected no persistence on invocation failure, got %d appends", len(transcripts.appends))
	}
}
