package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spigell/resumebot/internal/ai/gemini"
	"github.com/spigell/resumebot/internal/chat"
	"github.com/spigell/resumebot/internal/logger"
	"github.com/spigell/resumebot/internal/prompt"
	"github.com/spigell/resumebot/internal/secrets"
	"github.com/spigell/resumebot/internal/tools"
	"github.com/spigell/resumebot/internal/transcript"
)

const redisConnectTimeout = 5 * time.Second

// buildPipeline wires the full answer pipeline from the configuration: Redis
// transcript store, prompt assembler with the resume loaded from disk, Gemini
// generator with the default tool set, and the chat service on top.
func buildPipeline(ctx context.Context, config *Config, log *zap.Logger) (*chat.Service, *redis.Client, error) {
	if config == nil {
		return nil, nil, errors.New("config is required")
	}

	redisClient, err := connectRedis(ctx, config.Redis)
	if err != nil {
		return nil, nil, err
	}

	namespace := ""
	retention := time.Duration(0)
	if config.Redis != nil {
		namespace = config.Redis.Namespace
		retention = config.Redis.Retention
	}

	store := transcript.New(redisClient, namespace, retention, log)

	assembler, err := buildAssembler(config)
	if err != nil {
		return nil, nil, err
	}

	generator, err := buildGenerator(ctx, config.AI, log)
	if err != nil {
		return nil, nil, err
	}

	service, err := chat.NewService(generator, assembler, store, log)
	if err != nil {
		return nil, nil, err
	}

	return service, redisClient, nil
}

func connectRedis(ctx context.Context, config *RedisConfig) (*redis.Client, error) {
	url := "redis://localhost:6379"
	if config != nil && strings.TrimSpace(config.URL) != "" {
		url = strings.TrimSpace(config.URL)
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return client, nil
}

func buildAssembler(config *Config) (*prompt.Assembler, error) {
	resumeFile := strings.TrimSpace(config.ResumeFile)
	if resumeFile == "" {
		return nil, errors.New("resume-file is required in the configuration")
	}

	resume, err := os.ReadFile(resumeFile)
	if err != nil {
		return nil, fmt.Errorf("reading resume file %q: %w", resumeFile, err)
	}

	overrides := prompt.Overrides{}
	if config.Prompts != nil {
		if overrides.SystemTemplate, err = readOptionalTemplate(config.Prompts.SystemFile); err != nil {
			return nil, err
		}
		if overrides.UserTemplate, err = readOptionalTemplate(config.Prompts.UserFile); err != nil {
			return nil, err
		}
	}

	return prompt.New(string(resume), overrides)
}

func readOptionalTemplate(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading prompt template %q: %w", path, err)
	}

	return string(data), nil
}

func buildGenerator(ctx context.Context, config *AIConfig, log *zap.Logger) (*gemini.Generator, error) {
	if config == nil || config.Gemini == nil {
		return nil, errors.New("ai.gemini configuration is required")
	}

	provider := strings.TrimSpace(strings.ToLower(config.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", config.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: config.Gemini.APIKey,
		File:  config.Gemini.APIKeyFile,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	genLogger := logger.WithCommonFields(log, "gemini", config.Gemini.Model)

	return gemini.NewGenerator(ctx, apiKey, config.Gemini.Model, tools.Default(), config.Gemini.MaxRetries, genLogger)
}
