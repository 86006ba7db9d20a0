package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/resumebot/internal/ai"
	"github.com/spigell/resumebot/internal/logger"
	"github.com/spigell/resumebot/internal/prompt"
	"github.com/spigell/resumebot/internal/transcript"
)

const questionLogLength = 120

// ErrEmptyQuestion is returned for a blank question before any model call.
var ErrEmptyQuestion = errors.New("question must not be empty")

// Transcripts is the conversation history surface the service depends on.
type Transcripts interface {
	Append(ctx context.Context, conversationID string, role transcript.Role, text string) error
	Render(ctx context.Context, conversationID string) (string, error)
}

// Service answers questions about the resume. Per request: validate, assemble
// the prompt from the transcript, invoke the model once, decode the structured
// answer, persist the turn, return the answer text. Nothing is retried here
// and no state is shared across requests besides the transcript store.
type Service struct {
	generator   ai.Generator
	assembler   *prompt.Assembler
	transcripts Transcripts
	logger      *zap.Logger
}

// NewService wires the answer pipeline.
func NewService(generator ai.Generator, assembler *prompt.Assembler, transcripts Transcripts, log *zap.Logger) (*Service, error) {
	if generator == nil {
		return nil, errors.New("generator is required")
	}
	if assembler == nil {
		return nil, errors.New("prompt assembler is required")
	}
	if transcripts == nil {
		return nil, errors.New("transcript store is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Service{
		generator:   generator,
		assembler:   assembler,
		transcripts: transcripts,
		logger:      log,
	}, nil
}

// Answer processes one question. An empty conversation id means a stateless
// single-turn call: no history is read and nothing is persisted.
func (s *Service) Answer(ctx context.Context, question, conversationID string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	conversationID = strings.TrimSpace(conversationID)
	cid := conversationID
	if cid == "" {
		cid = "<none>"
	}

	s.logger.Info("processing question",
		zap.String("question", logger.TruncateForLog(question, questionLogLength)),
		zap.String(logger.FieldConversation, cid),
	)

	conversation := ""
	if conversationID != "" {
		rendered, err := s.transcripts.Render(ctx, conversationID)
		if err != nil {
			return "", fmt.Errorf("render transcript: %w", err)
		}
		conversation = rendered
	}

	p, err := s.assembler.Build(question, conversation)
	if err != nil {
		return "", fmt.Errorf("assemble prompt: %w", err)
	}

	raw, err := s.generator.Generate(ctx, p)
	if err != nil {
		return "", fmt.Errorf("invoke model: %w", err)
	}

	answer, err := ai.ParseAnswer(raw)
	if err != nil {
		return "", fmt.Errorf("decode model response: %w", err)
	}

	if answer.Found {
		s.logger.Info("found answer in resume", zap.String(logger.FieldConversation, cid))
	} else {
		s.logger.Info("no answer found in resume, using fallback", zap.String(logger.FieldConversation, cid))
	}

	// The turn is persisted whether or not the fact was found, so follow-up
	// questions see the fallback exchange too.
	if conversationID != "" {
		if err := s.transcripts.Append(ctx, conversationID, transcript.RoleUser, question); err != nil {
			return "", fmt.Errorf("persist user turn: %w", err)
		}
		if err := s.transcripts.Append(ctx, conversationID, transcript.RoleAssistant, answer.Answer); err != nil {
			return "", fmt.Errorf("persist assistant turn: %w", err)
		}
	}

	return answer.Answer, nil
}
