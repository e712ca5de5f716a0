package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"newspulse-bot/internal/domain"
	httpinfra "newspulse-bot/internal/infra/http"
	"newspulse-bot/internal/usecase/instant"
	"newspulse-bot/internal/usecase/schedule"
)

var (
	errBadBody         = errors.New("invalid request body")
	errUserIDRequired  = errors.New("user_id is required")
	errIDsRequired     = errors.New("user_id and summary_id are required")
	errNoTelegram      = errors.New("user has no telegram id")
	errNoCategories    = errors.New("user has no categories")
	errUserNotFound    = errors.New("user not found")
	errSummaryNotFound = errors.New("news summary not found")
	errInternal        = errors.New("internal error")
)

// InstantDeliverer отправляет новости в чат немедленно.
type InstantDeliverer interface {
	Deliver(ctx context.Context, chatID int64, categories []string, limit int) (instant.Report, error)
}

// Scheduler запускает планирование новостей.
type Scheduler interface {
	RunForUser(ctx context.Context, userID int64) (schedule.Report, error)
	RunAll(ctx context.Context) (schedule.Report, error)
}

// Handlers обслуживает HTTP API.
type Handlers struct {
	users        domain.UserRepo
	summaries    domain.SummaryRepo
	messenger    domain.Messenger
	instant      InstantDeliverer
	scheduler    Scheduler
	instantLimit int
	log          zerolog.Logger
}

// NewHandlers создаёт обработчики API.
func NewHandlers(users domain.UserRepo, summaries domain.SummaryRepo, messenger domain.Messenger, deliverer InstantDeliverer, scheduler Scheduler, instantLimit int, logger zerolog.Logger) *Handlers {
	return &Handlers{
		users:        users,
		summaries:    summaries,
		messenger:    messenger,
		instant:      deliverer,
		scheduler:    scheduler,
		instantLimit: instantLimit,
		log:          logger,
	}
}

// Routes регистрирует маршруты /api/v1 под проверкой токена.
func (h *Handlers) Routes(r chi.Router, token string) {
	r.Route("/api/v1", func(api chi.Router) {
		api.Use(httpinfra.APITokenMiddleware(token))
		api.Post("/telegram/test", h.sendTest)
		api.Post("/telegram/instant-news", h.instantNews)
		api.Post("/schedule/run", h.runSchedule)
	})
}

type testRequest struct {
	UserID    int64 `json:"user_id"`
	SummaryID int64 `json:"summary_id"`
}

type testResponse struct {
	Success   bool  `json:"success"`
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}

func (h *Handlers) sendTest(w http.ResponseWriter, r *http.Request) {
	var req testRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, errBadBody)
		return
	}
	if req.UserID == 0 || req.SummaryID == 0 {
		httpinfra.WriteError(w, http.StatusBadRequest, errIDsRequired)
		return
	}
	user, ok := h.loadUser(w, r, req.UserID)
	if !ok {
		return
	}
	summary, err := h.summaries.GetSummary(r.Context(), req.SummaryID)
	if err != nil {
		if errors.Is(err, domain.ErrSummaryNotFound) {
			httpinfra.WriteError(w, http.StatusNotFound, errSummaryNotFound)
			return
		}
		h.log.Error().Err(err).Int64("summary", req.SummaryID).Msg("api: не удалось получить новость")
		httpinfra.WriteError(w, http.StatusInternalServerError, errInternal)
		return
	}
	ref, err := h.messenger.Send(r.Context(), user.TelegramID, instant.FormatSummary(summary), nil)
	if err != nil {
		h.log.Error().Err(err).Int64("user", user.ID).Msg("api: не удалось отправить новость")
		httpinfra.WriteError(w, http.StatusBadGateway, errors.New("failed to send message"))
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, testResponse{Success: true, ChatID: ref.ChatID, MessageID: ref.MessageID})
}

type instantRequest struct {
	UserID     int64    `json:"user_id"`
	Categories []string `json:"categories"`
}

type instantResponse struct {
	Success    bool               `json:"success"`
	SentTo     string             `json:"sent_to"`
	ChatID     int64              `json:"chat_id"`
	NewsCount  int                `json:"news_count"`
	Categories []string           `json:"categories"`
	SentNews   []instant.SentItem `json:"sent_news"`
}

func (h *Handlers) instantNews(w http.ResponseWriter, r *http.Request) {
	var req instantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, errBadBody)
		return
	}
	if req.UserID == 0 {
		httpinfra.WriteError(w, http.StatusBadRequest, errUserIDRequired)
		return
	}
	user, ok := h.loadUser(w, r, req.UserID)
	if !ok {
		return
	}
	categories := knownCategories(req.Categories)
	if len(categories) == 0 {
		categories = user.Categories
	}
	if len(categories) == 0 {
		httpinfra.WriteError(w, http.StatusBadRequest, errNoCategories)
		return
	}
	rep, err := h.instant.Deliver(r.Context(), user.TelegramID, categories, h.instantLimit)
	if err != nil {
		h.log.Error().Err(err).Int64("user", user.ID).Msg("api: мгновенная доставка прервана")
		httpinfra.WriteError(w, http.StatusInternalServerError, errInternal)
		return
	}
	sentTo := user.Username
	if sentTo == "" {
		sentTo = user.Email
	}
	sent := rep.Sent
	if sent == nil {
		sent = []instant.SentItem{}
	}
	httpinfra.WriteJSON(w, http.StatusOK, instantResponse{
		Success:    true,
		SentTo:     sentTo,
		ChatID:     user.TelegramID,
		NewsCount:  rep.Count,
		Categories: categories,
		SentNews:   sent,
	})
}

type runRequest struct {
	UserID int64 `json:"user_id"`
}

func (h *Handlers) runSchedule(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httpinfra.WriteError(w, http.StatusBadRequest, errBadBody)
		return
	}
	var (
		rep schedule.Report
		err error
	)
	if req.UserID != 0 {
		rep, err = h.scheduler.RunForUser(r.Context(), req.UserID)
	} else {
		rep, err = h.scheduler.RunAll(r.Context())
	}
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			httpinfra.WriteError(w, http.StatusNotFound, errUserNotFound)
			return
		}
		h.log.Error().Err(err).Int64("user", req.UserID).Msg("api: ошибка планирования")
		httpinfra.WriteError(w, http.StatusInternalServerError, errInternal)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, rep)
}

// loadUser находит пользователя с привязанным Telegram и пишет ответ об ошибке, если это невозможно.
func (h *Handlers) loadUser(w http.ResponseWriter, r *http.Request, userID int64) (domain.UserAccount, bool) {
	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			httpinfra.WriteError(w, http.StatusNotFound, errUserNotFound)
			return domain.UserAccount{}, false
		}
		h.log.Error().Err(err).Int64("user", userID).Msg("api: не удалось получить пользователя")
		httpinfra.WriteError(w, http.StatusInternalServerError, errInternal)
		return domain.UserAccount{}, false
	}
	if user.TelegramID == 0 {
		httpinfra.WriteError(w, http.StatusBadRequest, errNoTelegram)
		return domain.UserAccount{}, false
	}
	return user, true
}

func knownCategories(raw []string) []string {
	var out []string
	for _, c := range raw {
		if domain.IsKnownCategory(c) {
			out = append(out, c)
		}
	}
	return out
}
