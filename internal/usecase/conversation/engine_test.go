package conversation

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"newspulse-bot/internal/adapters/memory"
	"newspulse-bot/internal/domain"
	"newspulse-bot/internal/usecase/instant"
)

type sent struct {
	chatID   int64
	text     string
	keyboard domain.Keyboard
}

type fakeMessenger struct {
	mu        sync.Mutex
	sent      []sent
	edits     []sent
	answers   []string
	editErr   error
	answerErr error
}

func (m *fakeMessenger) Send(ctx context.Context, chatID int64, text string, kb domain.Keyboard) (domain.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sent{chatID: chatID, text: text, keyboard: kb})
	return domain.MessageRef{ChatID: chatID, MessageID: len(m.sent)}, nil
}

func (m *fakeMessenger) Edit(ctx context.Context, ref domain.MessageRef, text string, kb domain.Keyboard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.editErr != nil {
		return m.editErr
	}
	m.edits = append(m.edits, sent{chatID: ref.ChatID, text: text, keyboard: kb})
	return nil
}

func (m *fakeMessenger) AnswerCallback(ctx context.Context, id, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, id+":"+text)
	return m.answerErr
}

func (m *fakeMessenger) last() sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sent{}
	}
	return m.sent[len(m.sent)-1]
}

func (m *fakeMessenger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fakeTrigger struct {
	users []int64
	err   error
}

func (t *fakeTrigger) TriggerUser(ctx context.Context, userID int64) error {
	t.users = append(t.users, userID)
	return t.err
}

type fakeDeliverer struct {
	chatID     int64
	categories []string
	limit      int
	calls      int
	err        error
}

func (d *fakeDeliverer) Deliver(ctx context.Context, chatID int64, categories []string, limit int) (instant.Report, error) {
	d.calls++
	d.chatID, d.categories, d.limit = chatID, categories, limit
	return instant.Report{Count: 1}, d.err
}

type harness struct {
	engine    *Engine
	messenger *fakeMessenger
	sessions  *memory.Sessions
	users     *memory.Users
	trigger   *fakeTrigger
	news      *fakeDeliverer
}

func newHarness() *harness {
	h := &harness{
		messenger: &fakeMessenger{},
		sessions:  memory.NewSessions(),
		users:     memory.NewUsers(),
		trigger:   &fakeTrigger{},
		news:      &fakeDeliverer{},
	}
	h.engine = NewEngine(h.sessions, h.users, h.messenger, h.trigger, h.news, zerolog.Nop(), Options{
		InstantLimit: 2,
		BcryptCost:   bcrypt.MinCost,
	})
	return h
}

func (h *harness) text(t *testing.T, chatID int64, text string) {
	t.Helper()
	if err := h.engine.Handle(context.Background(), Event{ChatID: chatID, Username: "ann", Text: text}); err != nil {
		t.Fatalf("событие %q: не ожидали ошибку: %v", text, err)
	}
}

func (h *harness) press(t *testing.T, chatID int64, data string) {
	t.Helper()
	ev := Event{ChatID: chatID, CallbackID: "cb-" + data, Data: data, Message: domain.MessageRef{ChatID: chatID, MessageID: 100}}
	if err := h.engine.Handle(context.Background(), ev); err != nil {
		t.Fatalf("кнопка %q: не ожидали ошибку: %v", data, err)
	}
}

func (h *harness) step(t *testing.T, chatID int64) domain.ChatSession {
	t.Helper()
	sess, err := h.sessions.Load(context.Background(), chatID)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	return sess
}

func TestFullOnboarding(t *testing.T) {
	h := newHarness()
	const chat = 501

	h.text(t, chat, "/start")
	if h.messenger.last().text != msgWelcome || h.step(t, chat).Step != domain.StepAwaitingEmail {
		t.Fatalf("ожидали запрос email, получили %q", h.messenger.last().text)
	}

	h.text(t, chat, " Ann@Example.COM ")
	if h.messenger.last().text != msgAskPassword || h.step(t, chat).PendingEmail != "ann@example.com" {
		t.Fatalf("ожидали запрос пароля, сессия %+v", h.step(t, chat))
	}

	h.text(t, chat, "s3cret")
	user, err := h.users.GetByTelegramID(context.Background(), chat)
	if err != nil {
		t.Fatalf("пользователь должен быть создан: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cret")) != nil {
		t.Fatal("пароль должен храниться в виде bcrypt-хэша")
	}
	if !user.Subscribed || user.PreferredTime != "09:00" || user.DeliveryMethod != domain.DeliveryTelegram || user.Username != "ann" {
		t.Fatalf("неожиданные значения по умолчанию: %+v", user)
	}
	if h.step(t, chat).Step != domain.StepAwaitingCategories || h.messenger.last().text != msgSelectCategories {
		t.Fatal("после пароля ожидали выбор категорий")
	}

	h.press(t, chat, "toggle_sports")
	h.press(t, chat, "toggle_technology")
	if got := h.step(t, chat).PendingCategories; !reflect.DeepEqual(got, []string{"sports", "technology"}) {
		t.Fatalf("неожиданный выбор: %v", got)
	}
	if len(h.messenger.edits) != 2 {
		t.Fatalf("клавиатура должна редактироваться на месте, правок %d", len(h.messenger.edits))
	}

	h.press(t, chat, "done_categories")
	if h.step(t, chat).Step != domain.StepAwaitingTime || h.messenger.last().text != msgAskTimeOnboarding {
		t.Fatal("ожидали запрос времени")
	}

	for _, bad := range []string{"9:5", "24:00", "noon"} {
		h.text(t, chat, bad)
		if h.messenger.last().text != msgInvalidTime || h.step(t, chat).Step != domain.StepAwaitingTime {
			t.Fatalf("%q должно отклоняться", bad)
		}
	}
	h.text(t, chat, "23:59")
	if h.step(t, chat).Step != domain.StepAwaitingDelivery || h.messenger.last().text != msgChooseDelivery {
		t.Fatal("ожидали выбор способа доставки")
	}

	h.press(t, chat, "delivery_both")
	if h.messenger.last().text != "✅ Registration complete!\nYour delivery method: both" {
		t.Fatalf("неожиданное подтверждение: %q", h.messenger.last().text)
	}
	if h.step(t, chat).Step != domain.StepNone {
		t.Fatal("после выбора доставки сессия должна быть сброшена")
	}
	user, _ = h.users.GetByTelegramID(context.Background(), chat)
	if !reflect.DeepEqual(user.Categories, []string{"sports", "technology"}) || user.PreferredTime != "23:59" || user.DeliveryMethod != domain.DeliveryBoth {
		t.Fatalf("настройки не сохранены: %+v", user)
	}
	if len(h.trigger.users) != 1 || h.trigger.users[0] != user.ID {
		t.Fatalf("ожидали запуск планирования для пользователя %d, получили %v", user.ID, h.trigger.users)
	}
	if len(h.messenger.answers) != 4 {
		t.Fatalf("каждое нажатие должно подтверждаться, ответов %d", len(h.messenger.answers))
	}
}

func TestStartWithoutAccountAlwaysAsksEmail(t *testing.T) {
	h := newHarness()
	const chat = 7

	h.press(t, chat, "toggle_health")
	h.text(t, chat, "/start")
	sess := h.step(t, chat)
	if sess.Step != domain.StepAwaitingEmail || len(sess.PendingCategories) != 0 {
		t.Fatalf("ожидали awaiting_email без выбора, получили %+v", sess)
	}

	h.text(t, chat, "bob@example.com")
	h.text(t, chat, "/start@NewsBot")
	if sess := h.step(t, chat); sess.Step != domain.StepAwaitingEmail || sess.PendingEmail != "" {
		t.Fatalf("повторный /start должен начинать заново, получили %+v", sess)
	}
}

func TestDuplicateEmailRejectedRegardlessOfCase(t *testing.T) {
	h := newHarness()
	if _, err := h.users.Create(context.Background(), domain.UserAccount{Email: "taken@example.com", TelegramID: 1}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	const chat = 2
	h.text(t, chat, "/start")
	h.text(t, chat, "TAKEN@Example.com")
	if h.messenger.last().text != msgEmailTaken || h.step(t, chat).Step != domain.StepAwaitingEmail {
		t.Fatal("занятый email должен отклоняться на шаге email")
	}
}

func TestEmailTakenBetweenSteps(t *testing.T) {
	h := newHarness()
	const chat = 3
	h.text(t, chat, "/start")
	h.text(t, chat, "race@example.com")
	if _, err := h.users.Create(context.Background(), domain.UserAccount{Email: "Race@example.com", TelegramID: 99}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	h.text(t, chat, "password")
	sess := h.step(t, chat)
	if sess.Step != domain.StepAwaitingEmail || sess.PendingEmail != "" || h.messenger.last().text != msgEmailTaken {
		t.Fatalf("ожидали возврат к вводу email, получили %+v", sess)
	}
}

func TestInvalidEmail(t *testing.T) {
	h := newHarness()
	h.text(t, 4, "/start")
	for _, bad := range []string{"not-an-email", "a b@c.io", "Ann <ann@x.io>", "user@localhost"} {
		h.text(t, 4, bad)
		if h.messenger.last().text != msgInvalidEmail || h.step(t, 4).Step != domain.StepAwaitingEmail {
			t.Fatalf("%q должен отклоняться", bad)
		}
	}
}

func TestPasswordWithoutPendingEmail(t *testing.T) {
	h := newHarness()
	const chat = 5
	_ = h.sessions.Save(context.Background(), domain.ChatSession{ChatID: chat, Step: domain.StepAwaitingPassword})
	h.text(t, chat, "secret")
	if h.messenger.last().text != msgRegistrationError || h.step(t, chat).Step != domain.StepNone {
		t.Fatal("ожидали ошибку регистрации и сброс сессии")
	}
	if _, err := h.users.GetByTelegramID(context.Background(), chat); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatal("пользователь не должен создаваться")
	}
}

func TestToggleTwiceRestoresKeyboard(t *testing.T) {
	h := newHarness()
	const chat = 6
	_ = h.sessions.Save(context.Background(), domain.ChatSession{ChatID: chat, Step: domain.StepAwaitingCategories, PendingCategories: []string{"health"}})
	before := categoryKeyboard(h.step(t, chat))

	h.press(t, chat, "toggle_sports")
	h.press(t, chat, "toggle_sports")

	sess := h.step(t, chat)
	if !reflect.DeepEqual(sess.PendingCategories, []string{"health"}) {
		t.Fatalf("ожидали исходный выбор, получили %v", sess.PendingCategories)
	}
	lastEdit := h.messenger.edits[len(h.messenger.edits)-1]
	if !reflect.DeepEqual(lastEdit.keyboard, before) {
		t.Fatal("после двойного переключения клавиатура должна совпадать с исходной")
	}
}

func TestToggleUnknownCategoryIgnored(t *testing.T) {
	h := newHarness()
	h.press(t, 8, "toggle_weather")
	if sess := h.step(t, 8); sess.Step != domain.StepNone || len(sess.PendingCategories) != 0 {
		t.Fatalf("неизвестная категория не должна менять сессию: %+v", sess)
	}
	if h.messenger.count() != 0 {
		t.Fatal("неизвестная категория не должна вызывать сообщений")
	}
}

func TestToggleFallsBackToSend(t *testing.T) {
	h := newHarness()
	h.messenger.editErr = errors.New("message to edit not found")
	h.press(t, 9, "toggle_science")
	last := h.messenger.last()
	if last.text != msgSelectCategories || last.keyboard[4][0].Text != "✅ science" {
		t.Fatalf("ожидали новую клавиатуру с отметкой, получили %+v", last)
	}
}

func TestDoneWithoutSelection(t *testing.T) {
	h := newHarness()
	const chat = 10
	_ = h.sessions.Save(context.Background(), domain.ChatSession{ChatID: chat, Step: domain.StepAwaitingCategories})
	h.press(t, chat, "done_categories")
	if h.messenger.last().text != msgSelectAtLeastOne || h.step(t, chat).Step != domain.StepAwaitingCategories {
		t.Fatal("пустой выбор должен отклоняться без смены шага")
	}
	if h.messenger.answers[0] != "cb-done_categories:"+answerSelectAtLeastOne {
		t.Fatalf("ожидали текст в ответе на нажатие, получили %v", h.messenger.answers)
	}
}

func TestDoneWithoutAccountResets(t *testing.T) {
	h := newHarness()
	const chat = 11
	h.press(t, chat, "toggle_business")
	h.press(t, chat, "done_categories")
	if h.messenger.last().text != msgNeedRegister || h.step(t, chat).Step != domain.StepNone {
		t.Fatal("без аккаунта ожидали сброс и просьбу зарегистрироваться")
	}
}

func registered(t *testing.T, h *harness, chat int64, categories []string) domain.UserAccount {
	t.Helper()
	u, err := h.users.Create(context.Background(), domain.UserAccount{
		Email:          "u@example.com",
		TelegramID:     chat,
		Categories:     categories,
		Subscribed:     true,
		DeliveryMethod: domain.DeliveryEmail,
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	return u
}

func TestMenuForRegisteredUser(t *testing.T) {
	h := newHarness()
	const chat = 12
	registered(t, h, chat, []string{"science", "general"})

	h.text(t, chat, "/start")
	last := h.messenger.last()
	if last.text != msgMenu || len(last.keyboard) != 5 || last.keyboard[0][0].Data != dataInstantNews {
		t.Fatalf("ожидали меню, получили %+v", last)
	}

	h.press(t, chat, "change_categories")
	sess := h.step(t, chat)
	if sess.Step != domain.StepAwaitingCategories || !reflect.DeepEqual(sess.PendingCategories, []string{"science", "general"}) {
		t.Fatalf("выбор должен быть заполнен текущими категориями: %+v", sess)
	}

	h.press(t, chat, "change_schedule")
	if h.step(t, chat).Step != domain.StepAwaitingTime || h.messenger.last().text != msgAskTime {
		t.Fatal("ожидали запрос времени")
	}

	h.press(t, chat, "change_delivery")
	if h.step(t, chat).Step != domain.StepAwaitingDelivery || h.messenger.last().text != msgChooseDelivery {
		t.Fatal("ожидали выбор доставки")
	}

	h.press(t, chat, "unsubscribe")
	u, _ := h.users.GetByTelegramID(context.Background(), chat)
	if u.Subscribed || h.messenger.last().text != msgUnsubscribed {
		t.Fatal("ожидали отписку")
	}

	h.press(t, chat, "delivery_telegram")
	u, _ = h.users.GetByTelegramID(context.Background(), chat)
	if !u.Subscribed || u.DeliveryMethod != domain.DeliveryTelegram {
		t.Fatalf("выбор доставки должен возобновлять подписку: %+v", u)
	}
}

func TestMenuActionsRequireAccount(t *testing.T) {
	h := newHarness()
	for _, data := range []string{"change_categories", "change_schedule", "change_delivery", "unsubscribe", "delivery_email", "instant_news"} {
		h.press(t, 13, data)
		if h.messenger.last().text != msgNeedRegister {
			t.Fatalf("%s: ожидали просьбу зарегистрироваться, получили %q", data, h.messenger.last().text)
		}
		if h.step(t, 13).Step != domain.StepNone {
			t.Fatalf("%s: сессия должна остаться пустой", data)
		}
	}
	if len(h.trigger.users) != 0 {
		t.Fatal("планирование не должно запускаться без аккаунта")
	}
}

func TestInstantNews(t *testing.T) {
	h := newHarness()
	const chat = 14
	registered(t, h, chat, nil)

	h.text(t, chat, "/news")
	if h.messenger.last().text != msgNoCategories || h.news.calls != 0 {
		t.Fatal("без категорий ожидали подсказку")
	}

	_ = h.users.UpdateCategories(context.Background(), chat, []string{"sports"})
	h.press(t, chat, "instant_news")
	if h.news.calls != 1 || h.news.chatID != chat || h.news.limit != 2 || !reflect.DeepEqual(h.news.categories, []string{"sports"}) {
		t.Fatalf("неожиданный вызов доставки: %+v", h.news)
	}
	if len(h.messenger.answers) != 1 {
		t.Fatalf("нажатие должно подтверждаться один раз, ответов %d", len(h.messenger.answers))
	}

	h.news.err = context.DeadlineExceeded
	if err := h.engine.Handle(context.Background(), Event{ChatID: chat, Text: "/news"}); err == nil {
		t.Fatal("ожидали ошибку доставки")
	}
	if h.messenger.last().text != msgInstantFailed {
		t.Fatal("ожидали сообщение об ошибке")
	}
}

func TestIgnoredInputs(t *testing.T) {
	h := newHarness()
	h.text(t, 15, "hello")
	h.text(t, 15, "/unknown")
	h.press(t, 15, "something_else")
	if h.messenger.count() != 0 {
		t.Fatalf("ожидали тишину, отправлено %d", h.messenger.count())
	}
	if len(h.messenger.answers) != 1 {
		t.Fatal("даже неизвестная кнопка подтверждается")
	}
}

func TestTextInButtonStepGetsHint(t *testing.T) {
	h := newHarness()
	_ = h.sessions.Save(context.Background(), domain.ChatSession{ChatID: 16, Step: domain.StepAwaitingDelivery})
	h.text(t, 16, "email please")
	if h.messenger.last().text != msgUseButtons {
		t.Fatal("ожидали подсказку про кнопки")
	}
}

func TestHelp(t *testing.T) {
	h := newHarness()
	h.text(t, 17, "/help")
	text := h.messenger.last().text
	for _, c := range domain.Categories {
		if !strings.Contains(text, "• "+c) {
			t.Fatalf("справка должна перечислять категорию %s", c)
		}
	}
}

func TestCallbackAnswerFailureIgnored(t *testing.T) {
	h := newHarness()
	h.messenger.answerErr = errors.New("query is too old")
	h.press(t, 18, "toggle_general")
	if got := h.step(t, 18).PendingCategories; len(got) != 1 {
		t.Fatalf("ошибка ответа на нажатие не должна мешать обработке: %v", got)
	}
}

func TestTriggerFailureStillConfirms(t *testing.T) {
	h := newHarness()
	h.trigger.err = errors.New("queue down")
	registered(t, h, 19, []string{"health"})
	h.press(t, 19, "delivery_email")
	if h.messenger.last().text != deliverySetText(domain.DeliveryEmail) {
		t.Fatal("ошибка планирования не должна мешать подтверждению")
	}
}

func TestConcurrentChatsReleaseLocks(t *testing.T) {
	h := newHarness()
	var wg sync.WaitGroup
	for chat := int64(100); chat < 120; chat++ {
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func(chat int64) {
				defer wg.Done()
				_ = h.engine.Handle(context.Background(), Event{ChatID: chat, CallbackID: "x", Data: "toggle_sports"})
			}(chat)
		}
	}
	wg.Wait()
	if n := h.engine.locks.size(); n != 0 {
		t.Fatalf("мьютексы чатов должны освобождаться, осталось %d", n)
	}
	for chat := int64(100); chat < 120; chat++ {
		if got := h.step(t, chat).PendingCategories; len(got) != 1 {
			t.Fatalf("чат %d: пять переключений подряд должны оставить категорию выбранной, получили %v", chat, got)
		}
	}
}
