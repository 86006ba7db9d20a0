package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/resumebot/internal/ai"
	"github.com/spigell/resumebot/internal/logger"
	"github.com/spigell/resumebot/internal/prompt"
	"github.com/spigell/resumebot/internal/tools"
	"github.com/spigell/resumebot/internal/utils"
)

const (
	defaultModel      = "gemini-2.5-pro"
	defaultMaxRetries = 3
	defaultToolRounds = 4
	retryBaseDelay    = 2 * time.Second
	previewLogLength  = 200
)

// wait is swappable in tests.
var wait = utils.WaitFor

// modelCaller is the subset of the genai client used by the generator.
type modelCaller interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type genaiModels struct {
	client *genai.Client
}

func (g genaiModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return g.client.Models.GenerateContent(ctx, model, contents, config)
}

// Generator invokes Gemini with a schema-constrained request and resolves
// mid-generation tool calls through the registry. Retrying temporary API
// errors happens here; callers see a single blocking invocation.
type Generator struct {
	models     modelCaller
	model      string
	registry   *tools.Registry
	maxRetries int
	toolRounds int
	logger     *zap.Logger
}

// NewGenerator creates a Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, apiKey, model string, registry *tools.Registry, maxRetries int, log *zap.Logger) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}

	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &Generator{
		models:     genaiModels{client: client},
		model:      model,
		registry:   registry,
		maxRetries: maxRetries,
		toolRounds: defaultToolRounds,
		logger:     log,
	}, nil
}

// Model returns the configured model name.
func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

// Generate submits the prompt and returns the raw textual output. The answer
// schema is sent as an output constraint and the registered tools are
// advertised; the model decides whether to call them.
func (g *Generator) Generate(ctx context.Context, p prompt.Prompt) (string, error) {
	if g == nil || g.models == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	if strings.TrimSpace(p.User) == "" {
		return "", errors.New("user instruction must not be empty")
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(p.System, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    ai.ResponseSchema(),
	}

	if g.registry != nil && g.registry.Len() > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: g.registry.Declarations()}}
	}

	g.logger.Debug("gemini generate content request",
		zap.Int("prompt_length", utf8.RuneCountInString(p.User)),
		zap.String("prompt_preview", logger.TruncateForLog(p.User, previewLogLength)),
	)

	contents := []*genai.Content{genai.NewContentFromText(p.User, genai.RoleUser)}

	for round := 0; ; round++ {
		resp, err := g.generateWithRetry(ctx, contents, config)
		if err != nil {
			return "", err
		}

		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			output := flattenText(resp)
			g.logger.Debug("gemini generate content response",
				zap.Int("response_length", utf8.RuneCountInString(output)),
				zap.String("response_preview", logger.TruncateForLog(output, previewLogLength)),
			)
			return output, nil
		}

		if round >= g.toolRounds {
			return "", fmt.Errorf("tool call limit reached after %d rounds", g.toolRounds)
		}

		if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
			contents = append(contents, resp.Candidates[0].Content)
		}

		for _, call := range calls {
			result, err := g.registry.Dispatch(call.Name, call.Args)
			if err != nil {
				return "", fmt.Errorf("dispatch tool %s: %w", call.Name, err)
			}

			g.logger.Debug("tool call resolved",
				zap.String("tool", call.Name),
				zap.Any("result", result),
			)

			contents = append(contents, genai.NewContentFromFunctionResponse(call.Name, result, genai.RoleUser))
		}
	}
}

func (g *Generator) generateWithRetry(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var lastErr error

	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		resp, err := g.models.GenerateContent(ctx, g.model, contents, config)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if !isTemporary(err) || attempt == g.maxRetries {
			break
		}

		delay := retryBaseDelay * time.Duration(attempt)
		g.logger.Warn("temporary gemini error, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := wait(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("generate content: %w", lastErr)
}

func isTemporary(err error) bool {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	return apiErr.Code >= 500 || apiErr.Code == 429
}

// flattenText joins the textual parts of all candidates. An empty result is
// left to the response contract decoder, which reports it as no content.
func flattenText(resp *genai.GenerateContentResponse) string {
	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	return strings.TrimSpace(builder.String())
}
