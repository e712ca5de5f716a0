package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"newspulse-bot/internal/domain"
)

// Users хранит пользователей в памяти процесса.
type Users struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]domain.UserAccount
}

var _ domain.UserRepo = (*Users)(nil)

// NewUsers создаёт пустой репозиторий пользователей.
func NewUsers() *Users {
	return &Users{byID: make(map[int64]domain.UserAccount)}
}

func cloneUser(u domain.UserAccount) domain.UserAccount {
	u.Categories = append([]string(nil), u.Categories...)
	return u
}

// Create сохраняет пользователя, проверяя уникальность email и Telegram ID.
func (r *Users) Create(_ context.Context, user domain.UserAccount) (domain.UserAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user.Email = domain.NormalizeEmail(user.Email)
	for _, existing := range r.byID {
		if existing.Email == user.Email {
			return domain.UserAccount{}, domain.ErrEmailTaken
		}
		if user.TelegramID != 0 && existing.TelegramID == user.TelegramID {
			return domain.UserAccount{}, domain.ErrTelegramLinked
		}
	}
	if user.PreferredTime == "" {
		user.PreferredTime = domain.DefaultPreferredTime
	}
	if user.DeliveryMethod == "" {
		user.DeliveryMethod = domain.DeliveryTelegram
	}
	r.nextID++
	now := time.Now().UTC()
	user.ID = r.nextID
	user.CreatedAt = now
	user.UpdatedAt = now
	user = cloneUser(user)
	r.byID[user.ID] = user
	return cloneUser(user), nil
}

// GetByID возвращает пользователя по ID.
func (r *Users) GetByID(_ context.Context, id int64) (domain.UserAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return domain.UserAccount{}, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

// GetByTelegramID возвращает пользователя по Telegram ID.
func (r *Users) GetByTelegramID(_ context.Context, telegramID int64) (domain.UserAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.byID {
		if telegramID != 0 && u.TelegramID == telegramID {
			return cloneUser(u), nil
		}
	}
	return domain.UserAccount{}, domain.ErrUserNotFound
}

// GetByEmail возвращает пользователя по email.
func (r *Users) GetByEmail(_ context.Context, email string) (domain.UserAccount, error) {
	email = domain.NormalizeEmail(email)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.byID {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return domain.UserAccount{}, domain.ErrUserNotFound
}

// ListSubscribed возвращает подписанных пользователей в порядке ID.
func (r *Users) ListSubscribed(_ context.Context) ([]domain.UserAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var users []domain.UserAccount
	for _, u := range r.byID {
		if u.Subscribed {
			users = append(users, cloneUser(u))
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *Users) update(telegramID int64, fn func(*domain.UserAccount)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, u := range r.byID {
		if telegramID != 0 && u.TelegramID == telegramID {
			fn(&u)
			u.UpdatedAt = time.Now().UTC()
			r.byID[id] = u
			return nil
		}
	}
	return domain.ErrUserNotFound
}

// UpdateCategories заменяет категории пользователя.
func (r *Users) UpdateCategories(_ context.Context, telegramID int64, categories []string) error {
	return r.update(telegramID, func(u *domain.UserAccount) {
		u.Categories = append([]string(nil), categories...)
	})
}

// UpdatePreferredTime обновляет время доставки.
func (r *Users) UpdatePreferredTime(_ context.Context, telegramID int64, hhmm string) error {
	return r.update(telegramID, func(u *domain.UserAccount) { u.PreferredTime = hhmm })
}

// UpdateDeliveryMethod обновляет способ доставки.
func (r *Users) UpdateDeliveryMethod(_ context.Context, telegramID int64, method domain.DeliveryMethod) error {
	return r.update(telegramID, func(u *domain.UserAccount) { u.DeliveryMethod = method })
}

// SetSubscribed включает или отключает подписку.
func (r *Users) SetSubscribed(_ context.Context, telegramID int64, subscribed bool) error {
	return r.update(telegramID, func(u *domain.UserAccount) { u.Subscribed = subscribed })
}
