package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spigell/resumebot/internal/logger"
)

const (
	defaultNamespace = "resumebot"
	defaultRetention = 24 * time.Hour
	previewLogLength = 120
)

// ErrEmptyConversationID is returned when an append is attempted without a conversation id.
var ErrEmptyConversationID = errors.New("conversation id is required")

// Role tags a transcript turn with its author. Roles are caller-side
// bookkeeping: only the raw message text is stored.
type Role string

const (
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
)

// commands is the subset of redis.Client used by the store.
type commands interface {
	RPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// Store keeps per-conversation transcripts as Redis lists. Every append
// resets the key's expiry, so an idle conversation dies retention after its
// last write.
type Store struct {
	client    commands
	namespace string
	retention time.Duration
	logger    *zap.Logger
}

// New creates a transcript store backed by the provided Redis client.
func New(client *redis.Client, namespace string, retention time.Duration, log *zap.Logger) *Store {
	return newStore(client, namespace, retention, log)
}

func newStore(client commands, namespace string, retention time.Duration, log *zap.Logger) *Store {
	if namespace = strings.TrimSpace(namespace); namespace == "" {
		namespace = defaultNamespace
	}

	if retention <= 0 {
		retention = defaultRetention
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &Store{
		client:    client,
		namespace: namespace,
		retention: retention,
		logger:    log,
	}
}

// Retention returns the rolling expiry window applied on every append.
func (s *Store) Retention() time.Duration {
	return s.retention
}

func (s *Store) key(conversationID string) string {
	return fmt.Sprintf("%s::conversations::%s::messages", s.namespace, conversationID)
}

// Append adds a turn to the conversation and resets its expiry. Store errors
// propagate: an unreachable Redis must never look like an empty history.
func (s *Store) Append(ctx context.Context, conversationID string, role Role, text string) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return ErrEmptyConversationID
	}

	key := s.key(conversationID)

	s.logger.Debug("appending transcript turn",
		zap.String(logger.FieldConversation, conversationID),
		zap.String("role", string(role)),
		zap.String("text_preview", logger.TruncateForLog(text, previewLogLength)),
	)

	if err := s.client.RPush(ctx, key, text).Err(); err != nil {
		return fmt.Errorf("append transcript turn: %w", err)
	}

	if err := s.client.Expire(ctx, key, s.retention).Err(); err != nil {
		return fmt.Errorf("refresh transcript expiry: %w", err)
	}

	return nil
}

// Read returns the conversation turns in append order. An absent, unknown or
// expired conversation yields an empty slice, not an error.
func (s *Store) Read(ctx context.Context, conversationID string) ([]string, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, nil
	}

	turns, err := s.client.LRange(ctx, s.key(conversationID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	return turns, nil
}

// Render produces the transcript as a single newline-joined block for prompt
// embedding, one turn per line, oldest first.
func (s *Store) Render(ctx context.Context, conversationID string) (string, error) {
	turns, err := s.Read(ctx, conversationID)
	if err != nil {
		return "", err
	}

	return strings.Join(turns, "\n"), nil
}
