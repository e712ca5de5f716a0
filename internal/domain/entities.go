package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrUserNotFound возвращается, когда пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrSummaryNotFound возвращается, когда новость не найдена.
	ErrSummaryNotFound = errors.New("news summary not found")
	// ErrEmailTaken возвращается при попытке зарегистрировать занятый email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrTelegramLinked возвращается, если Telegram ID уже привязан к другому пользователю.
	ErrTelegramLinked = errors.New("telegram account already linked")
	// ErrUnknownDeliveryMethod возвращается для неизвестного способа доставки.
	ErrUnknownDeliveryMethod = errors.New("unknown delivery method")
)

// DefaultPreferredTime используется, если пользователь не указал время.
const DefaultPreferredTime = "09:00"

// Categories перечисляет доступные категории новостей в порядке показа.
var Categories = []string{
	"business",
	"entertainment",
	"general",
	"health",
	"science",
	"sports",
	"technology",
}

// IsKnownCategory проверяет, что категория есть в списке.
func IsKnownCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

// DeliveryMethod описывает выбранный пользователем канал доставки.
type DeliveryMethod string

const (
	DeliveryTelegram DeliveryMethod = "telegram"
	DeliveryEmail    DeliveryMethod = "email"
	DeliveryBoth     DeliveryMethod = "both"
)

// ParseDeliveryMethod приводит строку к DeliveryMethod.
func ParseDeliveryMethod(raw string) (DeliveryMethod, error) {
	switch m := DeliveryMethod(strings.ToLower(strings.TrimSpace(raw))); m {
	case DeliveryTelegram, DeliveryEmail, DeliveryBoth:
		return m, nil
	default:
		return "", ErrUnknownDeliveryMethod
	}
}

// SendMethod описывает конкретный канал отправки одной записи расписания.
type SendMethod string

const (
	SendTelegram SendMethod = "telegram"
	SendEmail    SendMethod = "email"
)

// SendMethods раскрывает способ доставки в набор каналов отправки.
func (m DeliveryMethod) SendMethods() []SendMethod {
	switch m {
	case DeliveryBoth:
		return []SendMethod{SendTelegram, SendEmail}
	case DeliveryEmail:
		return []SendMethod{SendEmail}
	default:
		return []SendMethod{SendTelegram}
	}
}

// UserAccount описывает зарегистрированного пользователя.
type UserAccount struct {
	ID             int64
	Email          string
	PasswordHash   string
	Username       string
	TelegramID     int64
	Categories     []string
	PreferredTime  string
	DeliveryMethod DeliveryMethod
	Subscribed     bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NormalizeEmail приводит email к каноничному виду для сравнения.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewsItem описывает новость в том виде, в котором её вернул источник.
type NewsItem struct {
	Title       string
	SummaryText string
	SourceURL   string
}

// NewsSummary описывает сохранённую дедуплицированную новость.
type NewsSummary struct {
	ID          int64
	Category    string
	Title       string
	SummaryText string
	SourceURL   string
	CreatedAt   time.Time
}

// ScheduleEntry фиксирует обязательство доставить новость пользователю в заданное время.
type ScheduleEntry struct {
	ID          int64
	UserID      int64
	SummaryID   int64
	SendTime    time.Time
	SendMethods []SendMethod
	CreatedAt   time.Time
}
