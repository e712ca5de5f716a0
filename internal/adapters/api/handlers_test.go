package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"newspulse-bot/internal/adapters/memory"
	"newspulse-bot/internal/domain"
	"newspulse-bot/internal/usecase/instant"
	"newspulse-bot/internal/usecase/schedule"
)

type fakeMessenger struct {
	texts []string
	err   error
}

func (m *fakeMessenger) Send(ctx context.Context, chatID int64, text string, kb domain.Keyboard) (domain.MessageRef, error) {
	if m.err != nil {
		return domain.MessageRef{}, m.err
	}
	m.texts = append(m.texts, text)
	return domain.MessageRef{ChatID: chatID, MessageID: len(m.texts)}, nil
}

func (m *fakeMessenger) Edit(ctx context.Context, ref domain.MessageRef, text string, kb domain.Keyboard) error {
	return nil
}

func (m *fakeMessenger) AnswerCallback(ctx context.Context, id, text string) error {
	return nil
}

type fakeDeliverer struct {
	chatID     int64
	categories []string
	limit      int
}

func (d *fakeDeliverer) Deliver(ctx context.Context, chatID int64, categories []string, limit int) (instant.Report, error) {
	d.chatID, d.categories, d.limit = chatID, categories, limit
	return instant.Report{Count: 1, Sent: []instant.SentItem{{Title: "t", Category: categories[0]}}}, nil
}

type fakeScheduler struct {
	userID int64
	all    int
	err    error
}

func (s *fakeScheduler) RunForUser(ctx context.Context, userID int64) (schedule.Report, error) {
	s.userID = userID
	return schedule.Report{Users: 1, Created: 2}, s.err
}

func (s *fakeScheduler) RunAll(ctx context.Context) (schedule.Report, error) {
	s.all++
	return schedule.Report{Users: 3}, s.err
}

type harness struct {
	router    chi.Router
	users     *memory.Users
	summaries *memory.Summaries
	messenger *fakeMessenger
	deliverer *fakeDeliverer
	scheduler *fakeScheduler
}

func newHarness(t *testing.T, token string) *harness {
	t.Helper()
	h := &harness{
		users:     memory.NewUsers(),
		summaries: memory.NewSummaries(),
		messenger: &fakeMessenger{},
		deliverer: &fakeDeliverer{},
		scheduler: &fakeScheduler{},
	}
	handlers := NewHandlers(h.users, h.summaries, h.messenger, h.deliverer, h.scheduler, 3, zerolog.Nop())
	h.router = chi.NewRouter()
	handlers.Routes(h.router, token)
	return h
}

func (h *harness) post(path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if len(header) == 1 {
		req.Header.Set("Authorization", header[0])
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) addUser(t *testing.T, email string, telegramID int64, categories []string) domain.UserAccount {
	t.Helper()
	u, err := h.users.Create(context.Background(), domain.UserAccount{Email: email, Username: "ann", TelegramID: telegramID, Categories: categories})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	return u
}

func TestSendTest(t *testing.T) {
	h := newHarness(t, "")
	u := h.addUser(t, "a@b.io", 77, nil)
	s, _, _ := h.summaries.FindOrCreate(context.Background(), "sports", domain.NewsItem{Title: "Goal", SummaryText: "Late winner", SourceURL: "https://x"})

	w := h.post("/api/v1/telegram/test", `{"user_id":`+itoa(u.ID)+`,"summary_id":`+itoa(s.ID)+`}`)
	if w.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d: %s", w.Code, w.Body.String())
	}
	if len(h.messenger.texts) != 1 || !strings.Contains(h.messenger.texts[0], "Late winner") {
		t.Fatalf("неожиданные сообщения: %v", h.messenger.texts)
	}
}

func TestSendTestErrors(t *testing.T) {
	h := newHarness(t, "")
	linked := h.addUser(t, "a@b.io", 77, nil)
	unlinked := h.addUser(t, "c@d.io", 0, nil)
	s, _, _ := h.summaries.FindOrCreate(context.Background(), "sports", domain.NewsItem{Title: "Goal", SummaryText: "Late winner"})

	cases := []struct {
		name string
		body string
		code int
	}{
		{"битое тело", "{", http.StatusBadRequest},
		{"нет id", `{"user_id":1}`, http.StatusBadRequest},
		{"неизвестный пользователь", `{"user_id":999,"summary_id":1}`, http.StatusNotFound},
		{"неизвестная новость", `{"user_id":` + itoa(linked.ID) + `,"summary_id":999}`, http.StatusNotFound},
		{"нет telegram", `{"user_id":` + itoa(unlinked.ID) + `,"summary_id":` + itoa(s.ID) + `}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if w := h.post("/api/v1/telegram/test", tc.body); w.Code != tc.code {
				t.Fatalf("ожидали %d, получили %d", tc.code, w.Code)
			}
		})
	}

	h.messenger.err = errors.New("telegram down")
	w := h.post("/api/v1/telegram/test", `{"user_id":`+itoa(linked.ID)+`,"summary_id":`+itoa(s.ID)+`}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("ожидали 502, получили %d", w.Code)
	}
}

func TestInstantNews(t *testing.T) {
	h := newHarness(t, "")
	u := h.addUser(t, "a@b.io", 77, []string{"science"})

	w := h.post("/api/v1/telegram/instant-news", `{"user_id":`+itoa(u.ID)+`}`)
	if w.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d: %s", w.Code, w.Body.String())
	}
	var resp instantResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !resp.Success || resp.ChatID != 77 || resp.NewsCount != 1 || resp.SentTo != "ann" || len(resp.SentNews) != 1 {
		t.Fatalf("неожиданный ответ: %+v", resp)
	}
	if h.deliverer.limit != 3 || h.deliverer.categories[0] != "science" {
		t.Fatalf("ожидали лимит 3 и категории пользователя: %+v", h.deliverer)
	}

	w = h.post("/api/v1/telegram/instant-news", `{"user_id":`+itoa(u.ID)+`,"categories":["sports","bogus"]}`)
	if w.Code != http.StatusOK || len(h.deliverer.categories) != 1 || h.deliverer.categories[0] != "sports" {
		t.Fatalf("ожидали только известные категории из запроса: %v", h.deliverer.categories)
	}
}

func TestInstantNewsNoCategories(t *testing.T) {
	h := newHarness(t, "")
	u := h.addUser(t, "a@b.io", 77, nil)
	if w := h.post("/api/v1/telegram/instant-news", `{"user_id":`+itoa(u.ID)+`}`); w.Code != http.StatusBadRequest {
		t.Fatalf("ожидали 400, получили %d", w.Code)
	}
	if w := h.post("/api/v1/telegram/instant-news", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("ожидали 400 без user_id, получили %d", w.Code)
	}
}

func TestRunSchedule(t *testing.T) {
	h := newHarness(t, "")
	w := h.post("/api/v1/schedule/run", "")
	if w.Code != http.StatusOK || h.scheduler.all != 1 {
		t.Fatalf("ожидали прогон по всем: %d %d", w.Code, h.scheduler.all)
	}
	w = h.post("/api/v1/schedule/run", `{"user_id":5}`)
	if w.Code != http.StatusOK || h.scheduler.userID != 5 {
		t.Fatalf("ожидали прогон по пользователю: %d %d", w.Code, h.scheduler.userID)
	}
	var rep schedule.Report
	if err := json.Unmarshal(w.Body.Bytes(), &rep); err != nil || rep.Created != 2 {
		t.Fatalf("неожиданный отчёт: %+v %v", rep, err)
	}

	h.scheduler.err = domain.ErrUserNotFound
	if w := h.post("/api/v1/schedule/run", `{"user_id":6}`); w.Code != http.StatusNotFound {
		t.Fatalf("ожидали 404, получили %d", w.Code)
	}
}

func TestRoutesRequireToken(t *testing.T) {
	h := newHarness(t, "secret")
	if w := h.post("/api/v1/schedule/run", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("ожидали 401, получили %d", w.Code)
	}
	if w := h.post("/api/v1/schedule/run", "", "Bearer secret"); w.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", w.Code)
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
