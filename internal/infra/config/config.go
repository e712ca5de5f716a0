package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	TZ          string `envconfig:"TZ" default:"UTC"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
	APIToken    string `envconfig:"API_TOKEN"`

	Telegram struct {
		Token      string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string `envconfig:"TG_WEBHOOK_URL"`
		SendRPS    int    `envconfig:"TG_SEND_RPS" default:"25"`
	} `envconfig:""`

	PGDSN     string `envconfig:"PG_DSN"`
	RedisAddr string `envconfig:"REDIS_ADDR"`
	RabbitURL string `envconfig:"RABBITMQ_URL"`

	NewsAPI struct {
		Key      string        `envconfig:"NEWSAPI_KEY"`
		BaseURL  string        `envconfig:"NEWSAPI_BASE_URL"`
		Country  string        `envconfig:"NEWSAPI_COUNTRY" default:"us"`
		PageSize int           `envconfig:"NEWSAPI_PAGE_SIZE" default:"20"`
		CacheTTL time.Duration `envconfig:"NEWS_CACHE_TTL" default:"0s"`
	} `envconfig:""`

	Scheduler struct {
		Cron    string `envconfig:"SCHEDULER_CRON" default:"0 * * * *"`
		Workers int    `envconfig:"SCHEDULER_WORKERS" default:"4"`
	} `envconfig:""`

	Limits struct {
		ExternalCallTimeout time.Duration `envconfig:"EXTERNAL_CALL_TIMEOUT" default:"15s"`
		SessionTTL          time.Duration `envconfig:"SESSION_TTL" default:"24h"`
		InstantBot          int           `envconfig:"INSTANT_BOT_LIMIT" default:"2"`
		InstantAPI          int           `envconfig:"INSTANT_API_LIMIT" default:"3"`
	} `envconfig:""`

	Queues struct {
		Schedule string `envconfig:"SCHEDULE_QUEUE_KEY" default:"schedule_jobs"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	cfg, err := Parse()
	if err != nil {
		log.Fatal().Err(err).Msg("не удалось загрузить конфиг")
	}
	return cfg
}

// Parse читает конфиг из окружения и возвращает ошибку вместо завершения процесса.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Location возвращает часовой пояс для расчёта времени доставки.
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TZ)
	if err != nil {
		log.Warn().Err(err).Str("tz", c.TZ).Msg("неизвестный часовой пояс, используем UTC")
		return time.UTC
	}
	return loc
}
