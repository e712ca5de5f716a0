package conversation

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// HandlerFunc обрабатывает одно событие диалога.
type HandlerFunc func(ctx context.Context, ev Event) error

// Dispatcher раздаёт события по чатам: события одного чата идут по порядку
// в отдельной горутине, разные чаты обрабатываются параллельно.
type Dispatcher struct {
	ctx    context.Context
	handle HandlerFunc
	log    zerolog.Logger

	mu     sync.Mutex
	queues map[int64][]Event
	wg     sync.WaitGroup
}

// NewDispatcher создаёт диспетчер. ctx ограничивает время жизни обработки.
func NewDispatcher(ctx context.Context, handle HandlerFunc, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		ctx:    ctx,
		handle: handle,
		log:    logger,
		queues: make(map[int64][]Event),
	}
}

// Dispatch ставит событие в очередь чата и возвращается сразу.
func (d *Dispatcher) Dispatch(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	queue, running := d.queues[ev.ChatID]
	d.queues[ev.ChatID] = append(queue, ev)
	if running {
		return
	}
	d.wg.Add(1)
	go d.drain(ev.ChatID)
}

// Wait дожидается обработки всех принятых событий.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Pending возвращает число чатов с необработанными событиями.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}

func (d *Dispatcher) drain(chatID int64) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		queue := d.queues[chatID]
		if len(queue) == 0 {
			delete(d.queues, chatID)
			d.mu.Unlock()
			return
		}
		ev := queue[0]
		d.queues[chatID] = queue[1:]
		d.mu.Unlock()

		d.run(ev)
	}
}

func (d *Dispatcher) run(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Int64("chat", ev.ChatID).Str("panic", fmt.Sprint(r)).Msg("conversation: паника при обработке события")
		}
	}()
	if err := d.handle(d.ctx, ev); err != nil {
		d.log.Error().Err(err).Int64("chat", ev.ChatID).Msg("conversation: ошибка обработки события")
	}
}
