package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"newspulse-bot/internal/adapters/bot"
	"newspulse-bot/internal/app"
	"newspulse-bot/internal/domain"
	"newspulse-bot/internal/infra/config"
	httpinfra "newspulse-bot/internal/infra/http"
	applog "newspulse-bot/internal/infra/log"
	"newspulse-bot/internal/infra/metrics"
	"newspulse-bot/internal/usecase/conversation"
	"newspulse-bot/internal/usecase/instant"
	"newspulse-bot/internal/usecase/schedule"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: нет подключения к БД")
	}
	defer stores.Close()

	rdb, err := app.OpenRedis(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: нет подключения к Redis")
	}
	if rdb != nil {
		defer rdb.Close()
	}

	botAPI, gateway, err := app.Telegram(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: не удалось создать бота")
	}

	news := app.NewsSource(cfg, rdb, applog.Component(logger, "newsapi"))

	scheduleQueue, closeQueue, err := app.OpenQueue(cfg, rdb)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: не удалось инициализировать очередь")
	}
	defer closeQueue()

	var trigger domain.ScheduleTrigger
	if scheduleQueue != nil {
		trigger = schedule.NewQueueTrigger(scheduleQueue, domain.ScheduleCauseOnboarding)
	} else {
		logger.Info().Msg("bot-gateway: очередь не настроена, планирование выполняется в процессе")
		trigger = app.ScheduleService(cfg, stores, news, applog.Component(logger, "schedule"))
	}

	instantService := instant.NewService(news, gateway, applog.Component(logger, "instant"), cfg.Limits.ExternalCallTimeout)
	engine := conversation.NewEngine(
		app.SessionStore(cfg, rdb),
		stores.Users,
		gateway,
		trigger,
		instantService,
		applog.Component(logger, "conversation"),
		conversation.Options{InstantLimit: cfg.Limits.InstantBot},
	)
	dispatcher := conversation.NewDispatcher(ctx, engine.Handle, applog.Component(logger, "dispatcher"))
	handler := bot.NewHandler(dispatcher, applog.Component(logger, "bot"))

	srv := httpinfra.NewServer(logger)
	if cfg.Telegram.WebhookURL != "" {
		srv.Router.Post("/bot/webhook", handler.Webhook)
		wh, err := tgbotapi.NewWebhook(cfg.Telegram.WebhookURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("bot-gateway: неверный адрес вебхука")
		}
		if _, err := botAPI.Request(wh); err != nil {
			logger.Fatal().Err(err).Msg("bot-gateway: не удалось зарегистрировать вебхук")
		}
	} else {
		if _, err := botAPI.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			logger.Warn().Err(err).Msg("bot-gateway: не удалось снять вебхук")
		}
		go handler.Poll(ctx, botAPI)
	}

	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("bot-gateway: HTTP сервер остановлен")
			stop()
		}
	}()

	logger.Info().Str("bot", botAPI.Self.UserName).Msg("бот-гейтвей запущен")
	<-ctx.Done()
	logger.Info().Msg("остановка бота")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("bot-gateway: ошибка остановки HTTP сервера")
	}
	dispatcher.Wait()
}
