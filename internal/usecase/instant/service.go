package instant

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"newspulse-bot/internal/domain"
	"newspulse-bot/internal/infra/metrics"
)

const (
	fetchingText = "🔄 Fetching latest news for you..."
	doneTextFmt  = "✅ Found and sent %d news articles!"
)

// SentItem описывает отправленную новость.
type SentItem struct {
	Title     string `json:"title"`
	Category  string `json:"category"`
	SourceURL string `json:"source_url"`
}

// Report описывает итог мгновенной доставки.
type Report struct {
	Count int        `json:"count"`
	Sent  []SentItem `json:"sent"`
}

// Service отправляет свежие новости в чат сразу, без записей расписания.
type Service struct {
	news         domain.NewsSource
	messenger    domain.Messenger
	log          zerolog.Logger
	fetchTimeout time.Duration
}

// NewService создаёт сервис мгновенной доставки.
func NewService(news domain.NewsSource, messenger domain.Messenger, logger zerolog.Logger, fetchTimeout time.Duration) *Service {
	return &Service{news: news, messenger: messenger, log: logger, fetchTimeout: fetchTimeout}
}

// Deliver отправляет до limit новостей из каждой категории и сообщает итог.
// Ошибки отдельных категорий и отправок пропускаются; в счёт идут только доставленные новости.
func (s *Service) Deliver(ctx context.Context, chatID int64, categories []string, limit int) (Report, error) {
	log := s.log.With().Int64("chat", chatID).Logger()
	notice, err := s.messenger.Send(ctx, chatID, fetchingText, nil)
	if err != nil {
		log.Warn().Err(err).Msg("instant: не удалось отправить уведомление о загрузке")
	}

	var rep Report
	for _, category := range categories {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		items, err := s.fetch(ctx, category)
		if err != nil {
			metrics.IncFetchError(category)
			log.Warn().Err(err).Str("category", category).Msg("instant: не удалось получить новости")
			continue
		}
		if limit > 0 && len(items) > limit {
			items = items[:limit]
		}
		for _, item := range items {
			if _, err := s.messenger.Send(ctx, chatID, FormatItem(category, item), nil); err != nil {
				log.Warn().Err(err).Str("category", category).Msg("instant: не удалось отправить новость")
				continue
			}
			rep.Count++
			rep.Sent = append(rep.Sent, SentItem{Title: item.Title, Category: category, SourceURL: item.SourceURL})
			metrics.InstantNewsSent.Inc()
		}
	}

	done := fmt.Sprintf(doneTextFmt, rep.Count)
	if notice.IsZero() || s.messenger.Edit(ctx, notice, done, nil) != nil {
		if _, err := s.messenger.Send(ctx, chatID, done, nil); err != nil {
			log.Warn().Err(err).Msg("instant: не удалось отправить итог")
		}
	}
	log.Info().Int("count", rep.Count).Strs("categories", categories).Msg("instant: доставка завершена")
	return rep, nil
}

func (s *Service) fetch(ctx context.Context, category string) ([]domain.NewsItem, error) {
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}
	return s.news.FetchCategory(ctx, category)
}
