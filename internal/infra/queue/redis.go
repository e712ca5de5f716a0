package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"newspulse-bot/internal/domain"
	"newspulse-bot/internal/infra/metrics"
)

// RedisScheduleQueue реализует очередь задач планирования на базе Redis lists.
type RedisScheduleQueue struct {
	client *redis.Client
	key    string
}

// NewRedisScheduleQueue создаёт очередь по указанному ключу.
func NewRedisScheduleQueue(client *redis.Client, key string) *RedisScheduleQueue {
	return &RedisScheduleQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisScheduleQueue) Enqueue(ctx context.Context, job domain.ScheduleJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди.
// Неуспешное подтверждение возвращает задачу в конец очереди.
func (q *RedisScheduleQueue) Receive(ctx context.Context) (domain.ScheduleJob, domain.AckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.ScheduleJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.ScheduleJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.ScheduleJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.ScheduleJob{}, nil, errors.New("redis queue: unexpected response")
		}
		raw := res[1]
		var job domain.ScheduleJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return domain.ScheduleJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.client.LPush(context.Background(), q.key, raw).Err()
		}
		return job, ack, nil
	}
}
