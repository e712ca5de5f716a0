package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"newspulse-bot/internal/domain"
	"newspulse-bot/internal/infra/metrics"
)

// RedisSessionStore хранит состояние диалогов в Redis в виде JSON.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore создаёт хранилище сессий. ttl обновляется при каждом сохранении.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

func sessionKey(chatID int64) string {
	return "session:" + strconv.FormatInt(chatID, 10)
}

// Load возвращает сессию чата или пустую сессию.
func (s *RedisSessionStore) Load(ctx context.Context, chatID int64) (sess domain.ChatSession, err error) {
	start := time.Now()
	defer func() { metrics.ObserveNetworkRequest("redis", "session_load", "sessions", start, err) }()

	data, err := s.client.Get(ctx, sessionKey(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ChatSession{ChatID: chatID}, nil
	}
	if err != nil {
		return domain.ChatSession{}, fmt.Errorf("load session: %w", err)
	}
	if err := json.Unmarshal(data, &sess); err != nil {
		return domain.ChatSession{}, fmt.Errorf("decode session: %w", err)
	}
	sess.ChatID = chatID
	if !sess.Step.Valid() {
		sess.Reset()
	}
	return sess, nil
}

// Save сохраняет сессию.
func (s *RedisSessionStore) Save(ctx context.Context, sess domain.ChatSession) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveNetworkRequest("redis", "session_save", "sessions", start, err) }()

	sess.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(sess.ChatID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Clear удаляет сессию чата.
func (s *RedisSessionStore) Clear(ctx context.Context, chatID int64) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveNetworkRequest("redis", "session_clear", "sessions", start, err) }()
	return s.client.Del(ctx, sessionKey(chatID)).Err()
}
