package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"newspulse-bot/internal/app"
	"newspulse-bot/internal/infra/config"
	applog "newspulse-bot/internal/infra/log"
	"newspulse-bot/internal/infra/metrics"
	"newspulse-bot/internal/usecase/schedule"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	if cfg.PGDSN == "" {
		logger.Fatal().Msg("collector: не указан адрес БД (PG_DSN)")
	}
	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("collector: нет подключения к БД")
	}
	defer stores.Close()

	rdb, err := app.OpenRedis(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("collector: нет подключения к Redis")
	}
	if rdb != nil {
		defer rdb.Close()
	}

	scheduleQueue, closeQueue, err := app.OpenQueue(cfg, rdb)
	if err != nil {
		logger.Fatal().Err(err).Msg("collector: не удалось инициализировать очередь")
	}
	if scheduleQueue == nil {
		logger.Fatal().Msg("collector: не указана очередь (RABBITMQ_URL или REDIS_ADDR)")
	}
	defer closeQueue()

	news := app.NewsSource(cfg, rdb, applog.Component(logger, "newsapi"))
	service := app.ScheduleService(cfg, stores, news, applog.Component(logger, "schedule"))
	worker := schedule.NewWorker(scheduleQueue, service, applog.Component(logger, "collector"))

	logger.Info().Str("queue", cfg.Queues.Schedule).Msg("collector: запущен")
	worker.Run(ctx)
	logger.Info().Msg("collector: остановлен")
}
