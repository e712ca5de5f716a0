package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"newspulse-bot/internal/domain"
)

// receive читает задачу с таймаутом, чтобы тест не зависал на пустой очереди.
func receive(t *testing.T, q domain.ScheduleQueue) (domain.ScheduleJob, domain.AckFunc) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, ack, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("не ожидали ошибку чтения: %v", err)
	}
	return job, ack
}

// checkRequeue проверяет, что ack(false) возвращает задачу, а ack(true) её снимает.
func checkRequeue(t *testing.T, q domain.ScheduleQueue) {
	t.Helper()
	job := domain.ScheduleJob{ID: uuid.NewString(), UserID: 7, RequestedAt: time.Now().UTC(), Cause: domain.ScheduleCauseManual}
	if err := q.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	got, ack := receive(t, q)
	if got.ID != job.ID || got.UserID != 7 || got.Cause != domain.ScheduleCauseManual {
		t.Fatalf("неожиданная задача: %+v", got)
	}
	if err := ack(false); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	again, ack := receive(t, q)
	if again.ID != job.ID {
		t.Fatalf("ожидали повторную доставку %s, получили %s", job.ID, again.ID)
	}
	if err := ack(true); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	if extra, _, err := q.Receive(ctx); err == nil {
		t.Fatalf("ожидали пустую очередь, получили %+v", extra)
	}
}

func TestRedisScheduleQueueRequeue(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR не задан")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	key := "test:schedule_jobs:" + uuid.NewString()
	t.Cleanup(func() { _ = client.Del(context.Background(), key).Err() })

	checkRequeue(t, NewRedisScheduleQueue(client, key))
}

func TestRabbitScheduleQueueRequeue(t *testing.T) {
	url := os.Getenv("TEST_RABBITMQ_URL")
	if url == "" {
		t.Skip("TEST_RABBITMQ_URL не задан")
	}
	name := "test.schedule_jobs." + uuid.NewString()
	q, err := NewRabbitScheduleQueue(url, name)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	t.Cleanup(func() {
		_, _ = q.ch.QueueDelete(name, false, false, false)
		_ = q.Close()
	})

	checkRequeue(t, q)
}
