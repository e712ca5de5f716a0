package conversation

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"newspulse-bot/internal/domain"
	"newspulse-bot/internal/infra/metrics"
	"newspulse-bot/internal/usecase/instant"
	"newspulse-bot/internal/usecase/schedule"
)

// Event описывает входящее сообщение или нажатие кнопки в чате.
type Event struct {
	ChatID   int64
	Username string
	Text     string
	// CallbackID и Data заполнены для нажатий inline-кнопок.
	CallbackID string
	Data       string
	// Message ссылается на сообщение с нажатой клавиатурой.
	Message domain.MessageRef
}

// IsCallback сообщает, что событие пришло от inline-кнопки.
func (e Event) IsCallback() bool {
	return e.CallbackID != "" || e.Data != ""
}

// NewsDeliverer отправляет новости в чат немедленно.
type NewsDeliverer interface {
	Deliver(ctx context.Context, chatID int64, categories []string, limit int) (instant.Report, error)
}

// Options задаёт параметры движка.
type Options struct {
	InstantLimit int
	BcryptCost   int
}

// Engine реализует пошаговый диалог регистрации и управления подпиской.
type Engine struct {
	sessions  domain.SessionStore
	users     domain.UserRepo
	messenger domain.Messenger
	trigger   domain.ScheduleTrigger
	news      NewsDeliverer
	log       zerolog.Logger

	instantLimit int
	bcryptCost   int
	locks        *chatLocks
}

// NewEngine создаёт движок диалога.
func NewEngine(sessions domain.SessionStore, users domain.UserRepo, messenger domain.Messenger, trigger domain.ScheduleTrigger, news NewsDeliverer, logger zerolog.Logger, opts Options) *Engine {
	if opts.InstantLimit <= 0 {
		opts.InstantLimit = 2
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &Engine{
		sessions:     sessions,
		users:        users,
		messenger:    messenger,
		trigger:      trigger,
		news:         news,
		log:          logger,
		instantLimit: opts.InstantLimit,
		bcryptCost:   opts.BcryptCost,
		locks:        newChatLocks(),
	}
}

// Handle обрабатывает одно событие. События одного чата выполняются строго по очереди.
func (e *Engine) Handle(ctx context.Context, ev Event) error {
	unlock := e.locks.lock(ev.ChatID)
	defer unlock()

	sess, err := e.sessions.Load(ctx, ev.ChatID)
	if err != nil {
		return fmt.Errorf("загрузка сессии: %w", err)
	}
	sess.ChatID = ev.ChatID

	if ev.IsCallback() {
		metrics.IncConversationEvent("callback")
		answer, answered, err := e.handleCallback(ctx, &sess, ev)
		if !answered {
			e.answer(ctx, ev.CallbackID, answer)
		}
		return err
	}

	text := strings.TrimSpace(ev.Text)
	if strings.HasPrefix(text, "/") {
		metrics.IncConversationEvent("command")
		return e.handleCommand(ctx, &sess, text)
	}
	metrics.IncConversationEvent("text")
	return e.handleText(ctx, &sess, ev, text)
}

func commandName(text string) string {
	name, _, _ := strings.Cut(text, " ")
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name)
}

func (e *Engine) handleCommand(ctx context.Context, sess *domain.ChatSession, text string) error {
	switch commandName(text) {
	case "/start":
		return e.start(ctx, sess)
	case "/news":
		return e.instant(ctx, sess.ChatID)
	case "/help":
		e.send(ctx, sess.ChatID, HelpText(), nil)
		return nil
	default:
		return nil
	}
}

func (e *Engine) start(ctx context.Context, sess *domain.ChatSession) error {
	_, err := e.users.GetByTelegramID(ctx, sess.ChatID)
	switch {
	case err == nil:
		sess.Reset()
		if err := e.sessions.Save(ctx, *sess); err != nil {
			return fmt.Errorf("сохранение сессии: %w", err)
		}
		e.send(ctx, sess.ChatID, msgMenu, menuKeyboard())
		return nil
	case errors.Is(err, domain.ErrUserNotFound):
		sess.Reset()
		sess.Step = domain.StepAwaitingEmail
		if err := e.sessions.Save(ctx, *sess); err != nil {
			return fmt.Errorf("сохранение сессии: %w", err)
		}
		e.send(ctx, sess.ChatID, msgWelcome, nil)
		return nil
	default:
		return fmt.Errorf("поиск пользователя: %w", err)
	}
}

func (e *Engine) handleText(ctx context.Context, sess *domain.ChatSession, ev Event, text string) error {
	switch sess.Step {
	case domain.StepAwaitingEmail:
		return e.onEmail(ctx, sess, text)
	case domain.StepAwaitingPassword:
		return e.onPassword(ctx, sess, ev, text)
	case domain.StepAwaitingTime:
		return e.onTime(ctx, sess, text)
	case domain.StepAwaitingCategories, domain.StepAwaitingDelivery:
		e.send(ctx, sess.ChatID, msgUseButtons, nil)
		return nil
	default:
		return nil
	}
}

// validEmail проверяет, что строка содержит одиночный адрес без отображаемого имени.
func validEmail(email string) bool {
	if email == "" || strings.ContainsAny(email, " \t") {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email && strings.Contains(email[strings.LastIndex(email, "@")+1:], ".")
}

func (e *Engine) onEmail(ctx context.Context, sess *domain.ChatSession, text string) error {
	email := domain.NormalizeEmail(text)
	if !validEmail(email) {
		e.send(ctx, sess.ChatID, msgInvalidEmail, nil)
		return nil
	}
	_, err := e.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		e.send(ctx, sess.ChatID, msgEmailTaken, nil)
		return nil
	case !errors.Is(err, domain.ErrUserNotFound):
		return fmt.Errorf("проверка email: %w", err)
	}
	sess.PendingEmail = email
	sess.Step = domain.StepAwaitingPassword
	if err := e.sessions.Save(ctx, *sess); err != nil {
		return fmt.Errorf("сохранение сессии: %w", err)
	}
	e.send(ctx, sess.ChatID, msgAskPassword, nil)
	return nil
}

func (e *Engine) onPassword(ctx context.Context, sess *domain.ChatSession, ev Event, password string) error {
	if sess.PendingEmail == "" {
		return e.abort(ctx, sess, msgRegistrationError)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), e.bcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		e.send(ctx, sess.ChatID, msgPasswordTooLong, nil)
		return nil
	}
	if err != nil {
		_ = e.abort(ctx, sess, msgRegistrationError)
		return fmt.Errorf("хэширование пароля: %w", err)
	}

	_, err = e.users.Create(ctx, domain.UserAccount{
		Email:          sess.PendingEmail,
		PasswordHash:   string(hash),
		Username:       ev.Username,
		TelegramID:     sess.ChatID,
		PreferredTime:  domain.DefaultPreferredTime,
		DeliveryMethod: domain.DeliveryTelegram,
		Subscribed:     true,
	})
	switch {
	case errors.Is(err, domain.ErrEmailTaken):
		sess.PendingEmail = ""
		sess.Step = domain.StepAwaitingEmail
		if err := e.sessions.Save(ctx, *sess); err != nil {
			return fmt.Errorf("сохранение сессии: %w", err)
		}
		e.send(ctx, sess.ChatID, msgEmailTaken, nil)
		return nil
	case err != nil:
		_ = e.abort(ctx, sess, msgRegistrationError)
		if errors.Is(err, domain.ErrTelegramLinked) {
			return nil
		}
		return fmt.Errorf("создание пользователя: %w", err)
	}

	e.log.Info().Int64("chat", sess.ChatID).Msg("conversation: пользователь зарегистрирован")
	sess.PendingEmail = ""
	sess.PendingCategories = nil
	sess.Step = domain.StepAwaitingCategories
	if err := e.sessions.Save(ctx, *sess); err != nil {
		return fmt.Errorf("сохранение сессии: %w", err)
	}
	e.send(ctx, sess.ChatID, msgSelectCategories, categoryKeyboard(*sess))
	return nil
}

func (e *Engine) onTime(ctx context.Context, sess *domain.ChatSession, text string) error {
	hour, minute, err := schedule.ParseTimeOfDay(text)
	if err != nil {
		e.send(ctx, sess.ChatID, msgInvalidTime, nil)
		return nil
	}
	hhmm := fmt.Sprintf("%02d:%02d", hour, minute)
	if err := e.users.UpdatePreferredTime(ctx, sess.ChatID, hhmm); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return e.abort(ctx, sess, msgNeedRegister)
		}
		return fmt.Errorf("обновление времени: %w", err)
	}
	sess.Step = domain.StepAwaitingDelivery
	if err := e.sessions.Save(ctx, *sess); err != nil {
		return fmt.Errorf("сохранение сессии: %w", err)
	}
	e.send(ctx, sess.ChatID, msgChooseDelivery, deliveryKeyboard())
	return nil
}

// handleCallback возвращает текст ответа на нажатие и признак того, что ответ уже отправлен.
func (e *Engine) handleCallback(ctx context.Context, sess *domain.ChatSession, ev Event) (string, bool, error) {
	data := ev.Data
	switch {
	case strings.HasPrefix(data, prefixToggle):
		return "", false, e.onToggle(ctx, sess, ev, strings.TrimPrefix(data, prefixToggle))
	case data == dataDoneCategories:
		return e.onDoneCategories(ctx, sess)
	case strings.HasPrefix(data, prefixDelivery):
		return "", false, e.onDelivery(ctx, sess, strings.TrimPrefix(data, prefixDelivery))
	case data == dataInstantNews:
		e.answer(ctx, ev.CallbackID, "")
		return "", true, e.instant(ctx, sess.ChatID)
	case data == dataChangeCategories:
		return "", false, e.onChangeCategories(ctx, sess)
	case data == dataChangeSchedule:
		return "", false, e.onChangeStep(ctx, sess, domain.StepAwaitingTime, msgAskTime, nil)
	case data == dataChangeDelivery:
		return "", false, e.onChangeStep(ctx, sess, domain.StepAwaitingDelivery, msgChooseDelivery, deliveryKeyboard())
	case data == dataUnsubscribe:
		return "", false, e.onUnsubscribe(ctx, sess)
	default:
		e.log.Debug().Str("data", data).Int64("chat", sess.ChatID).Msg("conversation: неизвестная кнопка")
		return "", false, nil
	}
}

func (e *Engine) onToggle(ctx context.Context, sess *domain.ChatSession, ev Event, category string) error {
	if !domain.IsKnownCategory(category) {
		return nil
	}
	sess.Step = domain.StepAwaitingCategories
	sess.TogglePendingCategory(category)
	if err := e.sessions.Save(ctx, *sess); err != nil {
		return fmt.Errorf("сохранение сессии: %w", err)
	}
	kb := categoryKeyboard(*sess)
	if !ev.Message.IsZero() {
		err := e.messenger.Edit(ctx, ev.Message, msgSelectCategories, kb)
		if err == nil {
			return nil
		}
		e.log.Debug().Err(err).Int64("chat", sess.ChatID).Msg("conversation: не удалось обновить клавиатуру, отправляем заново")
	}
	e.send(ctx, sess.ChatID, msgSelectCategories, kb)
	return nil
}

func (e *Engine) onDoneCategories(ctx context.Context, sess *domain.ChatSession) (string, bool, error) {
	if len(sess.PendingCategories) == 0 {
		e.send(ctx, sess.ChatID, msgSelectAtLeastOne, nil)
		return answerSelectAtLeastOne, false, nil
	}
	if err := e.users.UpdateCategories(ctx, sess.ChatID, sess.PendingCategories); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return "", false, e.abort(ctx, sess, msgNeedRegister)
		}
		return "", false, fmt.Errorf("сохранение категорий: %w", err)
	}
	sess.PendingCategories = nil
	sess.Step = domain.StepAwaitingTime
	if err := e.sessions.Save(ctx, *sess); err != nil {
		return "", false, fmt.Errorf("сохранение сессии: %w", err)
	}
	e.send(ctx, sess.ChatID, msgAskTimeOnboarding, nil)
	return "", false, nil
}

func (e *Engine) onDelivery(ctx context.Context, sess *domain.ChatSession, raw string) error {
	method, err := domain.ParseDeliveryMethod(raw)
	if err != nil {
		e.log.Debug().Str("method", raw).Msg("conversation: неизвестный способ доставки")
		return nil
	}
	user, err := e.users.GetByTelegramID(ctx, sess.ChatID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return e.abort(ctx, sess, msgNeedRegister)
	}
	if err != nil {
		return fmt.Errorf("поиск пользователя: %w", err)
	}
	if err := e.users.UpdateDeliveryMethod(ctx, sess.ChatID, method); err != nil {
		return fmt.Errorf("обновление способа доставки: %w", err)
	}
	if err := e.users.SetSubscribed(ctx, sess.ChatID, true); err != nil {
		return fmt.Errorf("обновление подписки: %w", err)
	}
	if err := e.sessions.Clear(ctx, sess.ChatID); err != nil {
		e.log.Warn().Err(err).Int64("chat", sess.ChatID).Msg("conversation: не удалось очистить сессию")
	}
	sess.Reset()

	if e.trigger != nil {
		if err := e.trigger.TriggerUser(ctx, user.ID); err != nil {
			e.log.Error().Err(err).Int64("user", user.ID).Msg("conversation: не удалось запустить планирование")
		}
	}
	e.send(ctx, sess.ChatID, deliverySetText(method), nil)
	return nil
}

func (e *Engine) onChangeCategories(ctx context.Context, sess *domain.ChatSession) error {
	user, ok, err := e.requireUser(ctx, sess)
	if !ok {
		return err
	}
	sess.Reset()
	sess.Step = domain.StepAwaitingCategories
	for _, c := range user.Categories {
		if domain.IsKnownCategory(c) && !sess.HasPendingCategory(c) {
			sess.PendingCategories = append(sess.PendingCategories, c)
		}
	}
	if err := e.sessions.Save(ctx, *sess); err != nil {
		return fmt.Errorf("сохранение сессии: %w", err)
	}
	e.send(ctx, sess.ChatID, msgSelectCategories, categoryKeyboard(*sess))
	return nil
}

func (e *Engine) onChangeStep(ctx context.Context, sess *domain.ChatSession, step domain.Step, text string, kb domain.Keyboard) error {
	if _, ok, err := e.requireUser(ctx, sess); !ok {
		return err
	}
	sess.Reset()
	sess.Step = step
	if err := e.sessions.Save(ctx, *sess); err != nil {
		return fmt.Errorf("сохранение сессии: %w", err)
	}
	e.send(ctx, sess.ChatID, text, kb)
	return nil
}

func (e *Engine) onUnsubscribe(ctx context.Context, sess *domain.ChatSession) error {
	if err := e.users.SetSubscribed(ctx, sess.ChatID, false); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return e.abort(ctx, sess, msgNeedRegister)
		}
		return fmt.Errorf("отписка: %w", err)
	}
	if err := e.sessions.Clear(ctx, sess.ChatID); err != nil {
		e.log.Warn().Err(err).Int64("chat", sess.ChatID).Msg("conversation: не удалось очистить сессию")
	}
	sess.Reset()
	e.log.Info().Int64("chat", sess.ChatID).Msg("conversation: пользователь отписался")
	e.send(ctx, sess.ChatID, msgUnsubscribed, nil)
	return nil
}

func (e *Engine) instant(ctx context.Context, chatID int64) error {
	user, err := e.users.GetByTelegramID(ctx, chatID)
	if errors.Is(err, domain.ErrUserNotFound) {
		e.send(ctx, chatID, msgNeedRegister, nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("поиск пользователя: %w", err)
	}
	if len(user.Categories) == 0 {
		e.send(ctx, chatID, msgNoCategories, nil)
		return nil
	}
	if _, err := e.news.Deliver(ctx, chatID, user.Categories, e.instantLimit); err != nil {
		e.send(ctx, chatID, msgInstantFailed, nil)
		return fmt.Errorf("мгновенная доставка: %w", err)
	}
	return nil
}

// requireUser находит пользователя чата. Если его нет, сбрасывает сессию и просит зарегистрироваться.
func (e *Engine) requireUser(ctx context.Context, sess *domain.ChatSession) (domain.UserAccount, bool, error) {
	user, err := e.users.GetByTelegramID(ctx, sess.ChatID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.UserAccount{}, false, e.abort(ctx, sess, msgNeedRegister)
	}
	if err != nil {
		return domain.UserAccount{}, false, fmt.Errorf("поиск пользователя: %w", err)
	}
	return user, true, nil
}

// abort сбрасывает сессию в исходное состояние и сообщает пользователю причину.
func (e *Engine) abort(ctx context.Context, sess *domain.ChatSession, text string) error {
	sess.Reset()
	if err := e.sessions.Clear(ctx, sess.ChatID); err != nil {
		e.log.Warn().Err(err).Int64("chat", sess.ChatID).Msg("conversation: не удалось очистить сессию")
	}
	e.send(ctx, sess.ChatID, text, nil)
	return nil
}

func (e *Engine) send(ctx context.Context, chatID int64, text string, kb domain.Keyboard) {
	if _, err := e.messenger.Send(ctx, chatID, text, kb); err != nil {
		e.log.Error().Err(err).Int64("chat", chatID).Msg("conversation: не удалось отправить сообщение")
	}
}

func (e *Engine) answer(ctx context.Context, callbackID, text string) {
	if callbackID == "" {
		return
	}
	if err := e.messenger.AnswerCallback(ctx, callbackID, text); err != nil {
		e.log.Warn().Err(err).Msg("conversation: не удалось ответить на callback")
	}
}
