package newsapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"newspulse-bot/internal/domain"
)

// CachedSource кэширует ответы источника новостей по категории.
type CachedSource struct {
	next  domain.NewsSource
	cache domain.Cache
	ttl   time.Duration
	log   zerolog.Logger
}

// NewCachedSource оборачивает источник. При ttl <= 0 кэш не используется.
func NewCachedSource(next domain.NewsSource, cache domain.Cache, ttl time.Duration, logger zerolog.Logger) domain.NewsSource {
	if ttl <= 0 || cache == nil {
		return next
	}
	return &CachedSource{next: next, cache: cache, ttl: ttl, log: logger}
}

func cacheKey(category string) string {
	return "news:" + category
}

// FetchCategory возвращает новости из кэша или из источника.
func (s *CachedSource) FetchCategory(ctx context.Context, category string) ([]domain.NewsItem, error) {
	if data, err := s.cache.Get(cacheKey(category)); err == nil {
		var items []domain.NewsItem
		if err := json.Unmarshal(data, &items); err == nil {
			return items, nil
		}
	}
	items, err := s.next.FetchCategory(ctx, category)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(items)
	if err == nil {
		if err := s.cache.Set(cacheKey(category), data, s.ttl); err != nil {
			s.log.Warn().Err(err).Str("category", category).Msg("newsapi: не удалось записать кэш")
		}
	}
	return items, nil
}
