package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"newspulse-bot/internal/app"
	"newspulse-bot/internal/domain"
	"newspulse-bot/internal/infra/cache"
	"newspulse-bot/internal/infra/config"
	applog "newspulse-bot/internal/infra/log"
	"newspulse-bot/internal/infra/metrics"
	"newspulse-bot/internal/usecase/schedule"
)

const runLockTTL = 10 * time.Minute

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
	}
	defer stores.Close()

	rdb, err := app.OpenRedis(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к Redis")
	}
	var lock domain.Cache
	if rdb != nil {
		defer rdb.Close()
		lock = cache.NewRedis(rdb, "newspulse:lock:")
	}

	news := app.NewsSource(cfg, rdb, applog.Component(logger, "newsapi"))
	service := app.ScheduleService(cfg, stores, news, applog.Component(logger, "schedule"))

	c := cron.New(cron.WithLocation(cfg.Location()))
	if _, err := c.AddFunc(cfg.Scheduler.Cron, func() {
		runTick(ctx, service, lock, logger)
	}); err != nil {
		logger.Fatal().Err(err).Str("cron", cfg.Scheduler.Cron).Msg("scheduler: неверное расписание")
	}
	c.Start()
	logger.Info().Str("cron", cfg.Scheduler.Cron).Msg("scheduler: запущен")

	<-ctx.Done()
	logger.Info().Msg("scheduler: остановка")
	<-c.Stop().Done()
}

// runTick выполняет прогон по всем подписчикам. С Redis один тик выполняет только одна реплика.
func runTick(ctx context.Context, service *schedule.Service, lock domain.Cache, logger zerolog.Logger) {
	run := func() error {
		rep, err := service.RunAll(ctx)
		if err != nil {
			return err
		}
		logger.Info().Int("users", rep.Users).Int("created", rep.Created).Msg("scheduler: прогон завершён")
		return nil
	}
	var err error
	if lock == nil {
		err = run()
	} else {
		key := "run:" + time.Now().UTC().Format("200601021504")
		err = lock.Once(key, runLockTTL, run)
	}
	if err != nil {
		logger.Error().Err(err).Msg("scheduler: ошибка прогона")
	}
}
