package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"newspulse-bot/internal/adapters/api"
	"newspulse-bot/internal/app"
	"newspulse-bot/internal/infra/config"
	httpinfra "newspulse-bot/internal/infra/http"
	applog "newspulse-bot/internal/infra/log"
	"newspulse-bot/internal/infra/metrics"
	"newspulse-bot/internal/usecase/instant"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer stores.Close()

	rdb, err := app.OpenRedis(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к Redis")
	}
	if rdb != nil {
		defer rdb.Close()
	}

	_, gateway, err := app.Telegram(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось создать бота")
	}
	if cfg.APIToken == "" {
		logger.Warn().Msg("api: API_TOKEN не задан, эндпоинты доступны без авторизации")
	}

	news := app.NewsSource(cfg, rdb, applog.Component(logger, "newsapi"))
	handlers := api.NewHandlers(
		stores.Users,
		stores.Summaries,
		gateway,
		instant.NewService(news, gateway, applog.Component(logger, "instant"), cfg.Limits.ExternalCallTimeout),
		app.ScheduleService(cfg, stores, news, applog.Component(logger, "schedule")),
		cfg.Limits.InstantAPI,
		applog.Component(logger, "api"),
	)

	srv := httpinfra.NewServer(logger)
	handlers.Routes(srv.Router, cfg.APIToken)

	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("api: HTTP сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: ошибка остановки HTTP сервера")
	}
}
