package pending

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gpt-tgbot-go/internal/config"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Action marks what the next free-text message from a user will be
// interpreted as
type Action string

const (
	None              Action = ""
	AwaitingModel     Action = "awaiting_model"
	AwaitingTokens    Action = "awaiting_tokens"
	AwaitingBaseURL   Action = "awaiting_base_url"
	AwaitingAssistant Action = "awaiting_assistant_url"
)

// Store holds at most one pending action per user. Entries expire on their
// own so a user who walks away mid-menu does not keep stale state forever.
type Store interface {
	Get(ctx context.Context, userID int64) (Action, error)
	Set(ctx context.Context, userID int64, action Action) error
	Clear(ctx context.Context, userID int64) error
}

// NewStore creates a pending-action store for the configured backend
func NewStore(cfg *config.Config, logger *logrus.Logger) (Store, error) {
	switch cfg.Pending.Type {
	case "redis":
		return newRedisStore(&cfg.Pending, logger)
	case "memory":
		return newMemoryStore(&cfg.Pending), nil
	default:
		return nil, fmt.Errorf("unsupported pending store type: %s", cfg.Pending.Type)
	}
}

// memoryStore keeps pending actions in a TTL'd in-process cache
type memoryStore struct {
	entries *cache.Cache
}

func newMemoryStore(cfg *config.PendingConfig) *memoryStore {
	return &memoryStore{
		entries: cache.New(cfg.TTL, 10*time.Minute),
	}
}

func key(userID int64) string {
	return fmt.Sprintf("pending:%d", userID)
}

func (m *memoryStore) Get(ctx context.Context, userID int64) (Action, error) {
	if val, found := m.entries.Get(key(userID)); found {
		return val.(Action), nil
	}
	return None, nil
}

func (m *memoryStore) Set(ctx context.Context, userID int64, action Action) error {
	m.entries.SetDefault(key(userID), action)
	return nil
}

func (m *memoryStore) Clear(ctx context.Context, userID int64) error {
	m.entries.Delete(key(userID))
	return nil
}

// redisStore keeps pending actions in Redis so they survive restarts and
// are shared between replicas
type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func newRedisStore(cfg *config.PendingConfig, logger *logrus.Logger) (*redisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &redisStore{
		client: client,
		ttl:    cfg.TTL,
		logger: logger,
	}, nil
}

func (r *redisStore) Get(ctx context.Context, userID int64) (Action, error) {
	val, err := r.client.Get(ctx, key(userID)).Result()
	if err == redis.Nil {
		return None, nil
	}
	if err != nil {
		return None, err
	}
	return Action(val), nil
}

func (r *redisStore) Set(ctx context.Context, userID int64, action Action) error {
	return r.client.Set(ctx, key(userID), string(action), r.ttl).Err()
}

func (r *redisStore) Clear(ctx context.Context, userID int64) error {
	return r.client.Del(ctx, key(userID)).Err()
}
