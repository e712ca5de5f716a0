package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"newspulse-bot/internal/domain"
	"newspulse-bot/internal/infra/metrics"
)

// RabbitScheduleQueue реализует очередь задач планирования через AMQP.
type RabbitScheduleQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string

	mu         sync.Mutex
	deliveries <-chan amqp.Delivery
}

// NewRabbitScheduleQueue подключается к брокеру и объявляет долговечную очередь.
func NewRabbitScheduleQueue(amqpURL, queue string) (*RabbitScheduleQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	start := time.Now()
	conn, err := amqp.Dial(amqpURL)
	metrics.ObserveNetworkRequest("rabbitmq", "dial", queue, start, err)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return &RabbitScheduleQueue{conn: conn, ch: ch, queue: queue}, nil
}

// Enqueue публикует задачу в очередь.
func (q *RabbitScheduleQueue) Enqueue(ctx context.Context, job domain.ScheduleJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди.
// Неуспешное подтверждение возвращает сообщение брокеру для повторной доставки.
func (q *RabbitScheduleQueue) Receive(ctx context.Context) (domain.ScheduleJob, domain.AckFunc, error) {
	deliveries, err := q.consume()
	if err != nil {
		return domain.ScheduleJob{}, nil, err
	}
	select {
	case <-ctx.Done():
		return domain.ScheduleJob{}, nil, ctx.Err()
	case d, ok := <-deliveries:
		if !ok {
			return domain.ScheduleJob{}, nil, errors.New("rabbitmq: delivery channel closed")
		}
		var job domain.ScheduleJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			_ = d.Nack(false, false)
			return domain.ScheduleJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return d.Ack(false)
			}
			return d.Nack(false, true)
		}
		return job, ack, nil
	}
}

func (q *RabbitScheduleQueue) consume() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliveries != nil {
		return q.deliveries, nil
	}
	deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	q.deliveries = deliveries
	return deliveries, nil
}

// Close закрывает канал и соединение.
func (q *RabbitScheduleQueue) Close() error {
	_ = q.ch.Close()
	return q.conn.Close()
}
