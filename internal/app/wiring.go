// Package app собирает зависимости процессов из конфигурации.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"newspulse-bot/internal/adapters/bot"
	"newspulse-bot/internal/adapters/memory"
	"newspulse-bot/internal/adapters/repo"
	"newspulse-bot/internal/adapters/telegram"
	"newspulse-bot/internal/domain"
	"newspulse-bot/internal/infra/cache"
	"newspulse-bot/internal/infra/config"
	"newspulse-bot/internal/infra/db"
	"newspulse-bot/internal/infra/newsapi"
	"newspulse-bot/internal/infra/queue"
	"newspulse-bot/internal/usecase/schedule"
)

// Stores объединяет репозитории пользователей, новостей и расписания.
type Stores struct {
	Users     domain.UserRepo
	Summaries domain.SummaryRepo
	Schedules domain.ScheduleRepo

	close func()
}

// Close освобождает подключения хранилища.
func (s Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStores подключается к Postgres и применяет миграции.
// Без PG_DSN возвращаются хранилища в памяти процесса.
func OpenStores(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (Stores, error) {
	if cfg.PGDSN == "" {
		logger.Warn().Msg("app: PG_DSN не задан, данные хранятся в памяти процесса")
		return Stores{
			Users:     memory.NewUsers(),
			Summaries: memory.NewSummaries(),
			Schedules: memory.NewSchedules(),
		}, nil
	}
	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		return Stores{}, fmt.Errorf("подключение к БД: %w", err)
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return Stores{}, fmt.Errorf("миграции: %w", err)
	}
	pg := repo.NewPostgres(pool)
	return Stores{Users: pg, Summaries: pg, Schedules: pg, close: pool.Close}, nil
}

// OpenRedis возвращает клиент Redis или nil, если REDIS_ADDR не задан.
func OpenRedis(ctx context.Context, cfg config.AppConfig) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, cfg.Limits.ExternalCallTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// OpenQueue выбирает очередь задач планирования: RabbitMQ, затем Redis.
// Возвращает nil, если ни одна не настроена.
func OpenQueue(cfg config.AppConfig, rdb *redis.Client) (domain.ScheduleQueue, func(), error) {
	switch {
	case cfg.RabbitURL != "":
		q, err := queue.NewRabbitScheduleQueue(cfg.RabbitURL, cfg.Queues.Schedule)
		if err != nil {
			return nil, nil, fmt.Errorf("очередь RabbitMQ: %w", err)
		}
		return q, func() { _ = q.Close() }, nil
	case rdb != nil:
		return queue.NewRedisScheduleQueue(rdb, cfg.Queues.Schedule), func() {}, nil
	default:
		return nil, func() {}, nil
	}
}

// SessionStore возвращает Redis-хранилище сессий или хранилище в памяти.
func SessionStore(cfg config.AppConfig, rdb *redis.Client) domain.SessionStore {
	if rdb == nil {
		return memory.NewSessions()
	}
	return cache.NewRedisSessionStore(rdb, cfg.Limits.SessionTTL)
}

// NewsSource создаёт клиент NewsAPI с кэшем в Redis, если он доступен.
func NewsSource(cfg config.AppConfig, rdb *redis.Client, logger zerolog.Logger) domain.NewsSource {
	var src domain.NewsSource = newsapi.NewClient(cfg.NewsAPI.Key, cfg.NewsAPI.BaseURL, cfg.NewsAPI.Country, cfg.NewsAPI.PageSize, cfg.Limits.ExternalCallTimeout)
	if rdb == nil {
		return src
	}
	return newsapi.NewCachedSource(src, cache.NewRedis(rdb, "newspulse:"), cfg.NewsAPI.CacheTTL, logger)
}

// ScheduleService создаёт сервис планирования поверх хранилищ.
func ScheduleService(cfg config.AppConfig, stores Stores, news domain.NewsSource, logger zerolog.Logger) *schedule.Service {
	return schedule.NewService(stores.Users, stores.Summaries, stores.Schedules, news, logger, schedule.Options{
		Location:     cfg.Location(),
		FetchTimeout: cfg.Limits.ExternalCallTimeout,
		Workers:      cfg.Scheduler.Workers,
	})
}

// Telegram создаёт клиента Bot API для приёма апдейтов и шлюз отправки с ограничением частоты.
// У каждого свой HTTP клиент: отправка ограничена EXTERNAL_CALL_TIMEOUT, приём учитывает long polling.
func Telegram(cfg config.AppConfig) (*tgbotapi.BotAPI, *telegram.Gateway, error) {
	if cfg.Telegram.Token == "" {
		return nil, nil, errors.New("не указан токен Telegram (TG_BOT_TOKEN)")
	}
	callTimeout := cfg.Limits.ExternalCallTimeout
	updatesAPI, err := tgbotapi.NewBotAPIWithClient(cfg.Telegram.Token, tgbotapi.APIEndpoint, &http.Client{Timeout: bot.PollTimeout + callTimeout})
	if err != nil {
		return nil, nil, fmt.Errorf("создание бота: %w", err)
	}
	sendAPI, err := tgbotapi.NewBotAPIWithClient(cfg.Telegram.Token, tgbotapi.APIEndpoint, sendClient(callTimeout))
	if err != nil {
		return nil, nil, fmt.Errorf("создание бота: %w", err)
	}
	return updatesAPI, telegram.NewGateway(sendAPI, cfg.Telegram.SendRPS, callTimeout), nil
}

func sendClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
