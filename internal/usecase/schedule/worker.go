package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"newspulse-bot/internal/domain"
)

// Worker обрабатывает задачи планирования из очереди.
type Worker struct {
	queue   domain.ScheduleQueue
	service *Service
	log     zerolog.Logger
	backoff time.Duration
}

// NewWorker создаёт обработчик очереди.
func NewWorker(queue domain.ScheduleQueue, service *Service, logger zerolog.Logger) *Worker {
	return &Worker{
		queue:   queue,
		service: service,
		log:     logger,
		backoff: time.Second,
	}
}

// Run читает очередь до отмены контекста.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("collector: ошибка чтения очереди")
			w.sleep(ctx)
			continue
		}
		w.handle(ctx, job, ack)
	}
}

func (w *Worker) handle(ctx context.Context, job domain.ScheduleJob, ack domain.AckFunc) {
	jobLog := w.log.With().
		Str("job_id", job.ID).
		Int64("user", job.UserID).
		Str("cause", string(job.Cause)).
		Logger()

	rep, err := w.service.RunForUser(ctx, job.UserID)
	switch {
	case err == nil:
		jobLog.Info().Int("created", rep.Created).Int("skipped", rep.Skipped).Int("fetch_errors", rep.FetchErrors).Msg("collector: задача выполнена")
	case ctx.Err() != nil:
		jobLog.Warn().Err(err).Msg("collector: остановка во время задачи, возвращаем её в очередь")
		if err := ack(false); err != nil {
			jobLog.Error().Err(err).Msg("collector: не удалось вернуть задачу в очередь")
		}
		return
	case errors.Is(err, domain.ErrUserNotFound):
		jobLog.Warn().Msg("collector: пользователь не найден, задача отброшена")
	default:
		jobLog.Error().Err(err).Msg("collector: задача завершилась ошибкой и отброшена")
	}
	if err := ack(true); err != nil {
		jobLog.Error().Err(err).Msg("collector: не удалось подтвердить задачу")
	}
}

func (w *Worker) sleep(ctx context.Context) {
	if w.backoff <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(w.backoff):
	}
}
