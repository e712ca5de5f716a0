package domain

import "time"

// Step описывает, какой ввод бот ожидает от чата.
type Step string

const (
	StepNone               Step = ""
	StepAwaitingEmail      Step = "awaiting_email"
	StepAwaitingPassword   Step = "awaiting_password"
	StepAwaitingCategories Step = "awaiting_categories"
	StepAwaitingTime       Step = "awaiting_time"
	StepAwaitingDelivery   Step = "awaiting_delivery"
)

// Valid сообщает, входит ли шаг в допустимый набор.
func (s Step) Valid() bool {
	switch s {
	case StepNone, StepAwaitingEmail, StepAwaitingPassword, StepAwaitingCategories, StepAwaitingTime, StepAwaitingDelivery:
		return true
	default:
		return false
	}
}

// ChatSession хранит состояние диалога одного чата.
type ChatSession struct {
	ChatID            int64     `json:"chat_id"`
	Step              Step      `json:"step"`
	PendingEmail      string    `json:"pending_email,omitempty"`
	PendingCategories []string  `json:"pending_categories,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// HasPendingCategory проверяет наличие категории в текущем выборе.
func (s ChatSession) HasPendingCategory(category string) bool {
	for _, c := range s.PendingCategories {
		if c == category {
			return true
		}
	}
	return false
}

// TogglePendingCategory переключает категорию в выборе, сохраняя порядок остальных.
func (s *ChatSession) TogglePendingCategory(category string) {
	for i, c := range s.PendingCategories {
		if c == category {
			s.PendingCategories = append(s.PendingCategories[:i:i], s.PendingCategories[i+1:]...)
			return
		}
	}
	s.PendingCategories = append(s.PendingCategories, category)
}

// Reset возвращает сессию в исходное состояние.
func (s *ChatSession) Reset() {
	s.Step = StepNone
	s.PendingEmail = ""
	s.PendingCategories = nil
}

// Button описывает inline-кнопку.
type Button struct {
	Text string
	Data string
}

// Keyboard задаёт inline-клавиатуру строками кнопок.
type Keyboard [][]Button

// MessageRef ссылается на отправленное сообщение для последующего редактирования.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// IsZero сообщает, что ссылка пустая.
func (r MessageRef) IsZero() bool {
	return r.MessageID == 0
}
