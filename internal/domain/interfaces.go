package domain

import (
	"context"
	"time"
)

// NewsSource возвращает свежие новости по категории.
type NewsSource interface {
	FetchCategory(ctx context.Context, category string) ([]NewsItem, error)
}

// Messenger доставляет и редактирует сообщения в чатах.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string, keyboard Keyboard) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, text string, keyboard Keyboard) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// SessionStore хранит состояние диалогов по идентификатору чата.
type SessionStore interface {
	// Load возвращает сессию чата или пустую сессию, если её ещё нет.
	Load(ctx context.Context, chatID int64) (ChatSession, error)
	Save(ctx context.Context, session ChatSession) error
	Clear(ctx context.Context, chatID int64) error
}

// UserRepo управляет пользователями.
type UserRepo interface {
	// Create сохраняет пользователя. Для занятого email возвращает ErrEmailTaken.
	Create(ctx context.Context, user UserAccount) (UserAccount, error)
	GetByID(ctx context.Context, id int64) (UserAccount, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (UserAccount, error)
	GetByEmail(ctx context.Context, email string) (UserAccount, error)
	ListSubscribed(ctx context.Context) ([]UserAccount, error)
	UpdateCategories(ctx context.Context, telegramID int64, categories []string) error
	UpdatePreferredTime(ctx context.Context, telegramID int64, hhmm string) error
	UpdateDeliveryMethod(ctx context.Context, telegramID int64, method DeliveryMethod) error
	SetSubscribed(ctx context.Context, telegramID int64, subscribed bool) error
}

// SummaryRepo хранит дедуплицированные новости.
type SummaryRepo interface {
	// FindOrCreate атомарно возвращает новость с таким же текстом или создаёт новую.
	FindOrCreate(ctx context.Context, category string, item NewsItem) (NewsSummary, bool, error)
	GetSummary(ctx context.Context, id int64) (NewsSummary, error)
}

// ScheduleRepo хранит записи расписания доставки.
type ScheduleRepo interface {
	// CreateIfAbsent создаёт запись, если для пары (пользователь, новость) её ещё нет.
	// Возвращает true, если запись была создана.
	CreateIfAbsent(ctx context.Context, entry ScheduleEntry) (bool, error)
	ListForUser(ctx context.Context, userID int64) ([]ScheduleEntry, error)
}

// ScheduleTrigger запускает планирование новостей для пользователя.
type ScheduleTrigger interface {
	TriggerUser(ctx context.Context, userID int64) error
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
