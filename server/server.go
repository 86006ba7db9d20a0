package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spigell/resumebot/internal/ai"
	"github.com/spigell/resumebot/internal/chat"
)

// Answerer is the core operation exposed over HTTP.
type Answerer interface {
	Answer(ctx context.Context, question, conversationID string) (string, error)
}

// Pinger reports whether the transcript backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP boundary: request parsing and error-to-status mapping
// only, the pipeline itself lives in the chat service.
type Server struct {
	app     *fiber.App
	service Answerer
	health  Pinger
	logger  *zap.Logger
}

// New builds the fiber application with its routes.
func New(service Answerer, health Pinger, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		app: fiber.New(fiber.Config{
			AppName:               "resumebot",
			DisableStartupMessage: true,
		}),
		service: service,
		health:  health,
		logger:  log,
	}

	s.app.Post("/chat", s.handleChat)
	s.app.Get("/healthz", s.handleHealth)

	return s
}

// App exposes the fiber application for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves HTTP on the given address until Shutdown.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	question := c.FormValue("prompt")
	conversationID := c.FormValue("conversationId")

	answer, err := s.service.Answer(c.UserContext(), question, conversationID)
	if err != nil {
		return s.mapError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/markdown; charset=utf-8")
	return c.SendString(answer)
}

func (s *Server) mapError(c *fiber.Ctx, err error) error {
	var schemaErr *ai.SchemaError

	switch {
	case errors.Is(err, chat.ErrEmptyQuestion):
		return c.Status(fiber.StatusBadRequest).SendString("Error: " + chat.ErrEmptyQuestion.Error())
	case errors.Is(err, ai.ErrNoContent), errors.As(err, &schemaErr):
		s.logger.Error("model contract failure", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).SendString("Error: invalid model response")
	default:
		s.logger.Error("answering question failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).SendString("Error: internal error")
	}
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	if s.health != nil {
		if err := s.health.Ping(c.UserContext()); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).SendString("transcript store unreachable")
		}
	}

	return c.SendString("ok")
}
