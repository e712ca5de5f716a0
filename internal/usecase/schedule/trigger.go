package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"newspulse-bot/internal/domain"
)

// QueueTrigger передаёт запрос на планирование в очередь вместо выполнения на месте.
type QueueTrigger struct {
	queue domain.ScheduleQueue
	cause domain.ScheduleJobCause
	now   func() time.Time
}

var _ domain.ScheduleTrigger = (*QueueTrigger)(nil)

// NewQueueTrigger создаёт триггер с указанной причиной задач.
func NewQueueTrigger(queue domain.ScheduleQueue, cause domain.ScheduleJobCause) *QueueTrigger {
	return &QueueTrigger{queue: queue, cause: cause, now: time.Now}
}

// TriggerUser ставит задачу планирования пользователя в очередь.
func (t *QueueTrigger) TriggerUser(ctx context.Context, userID int64) error {
	job := domain.ScheduleJob{
		ID:          uuid.NewString(),
		UserID:      userID,
		RequestedAt: t.now().UTC(),
		Cause:       t.cause,
	}
	if err := t.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("постановка задачи планирования: %w", err)
	}
	return nil
}
