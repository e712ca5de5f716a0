package bot

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"newspulse-bot/internal/usecase/conversation"
)

// PollTimeout задаёт время ожидания long polling на стороне Telegram.
const PollTimeout = 30 * time.Second

// Dispatcher принимает события диалога для обработки.
type Dispatcher interface {
	Dispatch(ev conversation.Event)
}

// Handler превращает апдейты Telegram в события диалога.
type Handler struct {
	dispatch Dispatcher
	log      zerolog.Logger
}

// NewHandler создаёт обработчик.
func NewHandler(dispatch Dispatcher, log zerolog.Logger) *Handler {
	return &Handler{dispatch: dispatch, log: log}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(upd tgbotapi.Update) {
	ev, ok := EventFromUpdate(upd)
	if !ok {
		h.log.Debug().Int("update_id", upd.UpdateID).Msg("bot: апдейт пропущен")
		return
	}
	h.dispatch.Dispatch(ev)
}

// EventFromUpdate извлекает событие из апдейта. Апдейты без текста и без данных кнопки пропускаются.
func EventFromUpdate(upd tgbotapi.Update) (conversation.Event, bool) {
	switch {
	case upd.Message != nil:
		msg := upd.Message
		text := strings.TrimSpace(msg.Text)
		if text == "" || msg.Chat == nil {
			return conversation.Event{}, false
		}
		ev := conversation.Event{ChatID: msg.Chat.ID, Text: text}
		if msg.From != nil {
			ev.Username = msg.From.UserName
		}
		return ev, true
	case upd.CallbackQuery != nil:
		cb := upd.CallbackQuery
		if cb.Message == nil || cb.Message.Chat == nil {
			return conversation.Event{}, false
		}
		ev := conversation.Event{
			ChatID:     cb.Message.Chat.ID,
			CallbackID: cb.ID,
			Data:       cb.Data,
		}
		ev.Message.ChatID = cb.Message.Chat.ID
		ev.Message.MessageID = cb.Message.MessageID
		if cb.From != nil {
			ev.Username = cb.From.UserName
		}
		return ev, true
	default:
		return conversation.Event{}, false
	}
}

// Webhook принимает апдейты от Telegram по HTTP.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.HandleUpdate(update)
	w.WriteHeader(http.StatusOK)
}

// Poll получает апдейты long polling до отмены контекста.
func (h *Handler) Poll(ctx context.Context, api *tgbotapi.BotAPI) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = int(PollTimeout / time.Second)
	cfg.AllowedUpdates = []string{"message", "callback_query"}
	updates := api.GetUpdatesChan(cfg)
	h.log.Info().Msg("bot: long polling запущен")
	for {
		select {
		case <-ctx.Done():
			api.StopReceivingUpdates()
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			h.HandleUpdate(upd)
		}
	}
}
