package domain

import (
	"context"
	"time"
)

// ScheduleJobCause описывает источник запроса на планирование.
type ScheduleJobCause string

const (
	// ScheduleCauseOnboarding: пользователь завершил настройку в боте.
	ScheduleCauseOnboarding ScheduleJobCause = "onboarding"
	// ScheduleCauseManual: запуск через API.
	ScheduleCauseManual ScheduleJobCause = "manual"
)

// ScheduleJob содержит информацию о задаче планирования новостей пользователя.
type ScheduleJob struct {
	ID          string           `json:"job_id,omitempty"`
	UserID      int64            `json:"user_id"`
	RequestedAt time.Time        `json:"requested_at"`
	Cause       ScheduleJobCause `json:"cause"`
}

// ScheduleQueue описывает очередь задач планирования.
type ScheduleQueue interface {
	Enqueue(ctx context.Context, job ScheduleJob) error
	Receive(ctx context.Context) (ScheduleJob, AckFunc, error)
}

// AckFunc подтверждает успешную обработку или запрашивает повтор доставки задачи.
type AckFunc func(success bool) error
