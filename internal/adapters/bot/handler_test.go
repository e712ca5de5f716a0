package bot

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"newspulse-bot/internal/usecase/conversation"
)

type recorder struct {
	events []conversation.Event
}

func (r *recorder) Dispatch(ev conversation.Event) {
	r.events = append(r.events, ev)
}

func TestEventFromMessage(t *testing.T) {
	upd := tgbotapi.Update{Message: &tgbotapi.Message{
		Text: " /start ",
		Chat: &tgbotapi.Chat{ID: 42},
		From: &tgbotapi.User{UserName: "ann"},
	}}
	ev, ok := EventFromUpdate(upd)
	if !ok || ev.ChatID != 42 || ev.Text != "/start" || ev.Username != "ann" || ev.IsCallback() {
		t.Fatalf("неожиданное событие: %+v", ev)
	}
}

func TestEventFromCallback(t *testing.T) {
	upd := tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		Data:    "toggle_sports",
		From:    &tgbotapi.User{UserName: "ann"},
		Message: &tgbotapi.Message{MessageID: 9, Chat: &tgbotapi.Chat{ID: 42}},
	}}
	ev, ok := EventFromUpdate(upd)
	if !ok || !ev.IsCallback() || ev.Data != "toggle_sports" || ev.Message.MessageID != 9 || ev.Message.ChatID != 42 {
		t.Fatalf("неожиданное событие: %+v", ev)
	}
}

func TestEventFromUpdateSkips(t *testing.T) {
	cases := []tgbotapi.Update{
		{},
		{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}}},
		{CallbackQuery: &tgbotapi.CallbackQuery{ID: "x", Data: "y"}},
	}
	for i, upd := range cases {
		if _, ok := EventFromUpdate(upd); ok {
			t.Fatalf("случай %d должен пропускаться", i)
		}
	}
}

func TestWebhook(t *testing.T) {
	rec := &recorder{}
	h := NewHandler(rec, zerolog.Nop())

	body := `{"update_id":1,"message":{"message_id":1,"text":"hello","chat":{"id":5,"type":"private"}}}`
	w := httptest.NewRecorder()
	h.Webhook(w, httptest.NewRequest(http.MethodPost, "/bot/webhook", strings.NewReader(body)))
	if w.Code != http.StatusOK || len(rec.events) != 1 || rec.events[0].ChatID != 5 {
		t.Fatalf("неожиданный результат: %d %+v", w.Code, rec.events)
	}

	w = httptest.NewRecorder()
	h.Webhook(w, httptest.NewRequest(http.MethodPost, "/bot/webhook", strings.NewReader("{")))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("ожидали 400, получили %d", w.Code)
	}
}
