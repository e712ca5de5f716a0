package memory

import (
	"context"
	"sync"
	"time"

	"newspulse-bot/internal/domain"
)

// Sessions хранит состояние диалогов в памяти процесса.
type Sessions struct {
	mu   sync.Mutex
	data map[int64]domain.ChatSession
}

var _ domain.SessionStore = (*Sessions)(nil)

// NewSessions создаёт пустое хранилище сессий.
func NewSessions() *Sessions {
	return &Sessions{data: make(map[int64]domain.ChatSession)}
}

func cloneSession(s domain.ChatSession) domain.ChatSession {
	s.PendingCategories = append([]string(nil), s.PendingCategories...)
	return s
}

// Load возвращает сессию чата или пустую сессию.
func (s *Sessions) Load(_ context.Context, chatID int64) (domain.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.data[chatID]
	if !ok {
		return domain.ChatSession{ChatID: chatID}, nil
	}
	return cloneSession(sess), nil
}

// Save сохраняет сессию.
func (s *Sessions) Save(_ context.Context, sess domain.ChatSession) error {
	sess.UpdatedAt = time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sess.ChatID] = cloneSession(sess)
	return nil
}

// Clear удаляет сессию чата.
func (s *Sessions) Clear(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, chatID)
	return nil
}
