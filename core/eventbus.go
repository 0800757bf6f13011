package recorder

import (
	"context"
	"log/slog"
	"sync"

	"github.com/koscakluka/ema-recorder/core/events"
)

type subscription struct {
	id      int
	deliver func(events.Event)
}

// eventBus delivers events to subscribers on its own goroutine, in publish
// order, so a slow subscriber never stalls segmentation.
type eventBus struct {
	mu            sync.Mutex
	subscriptions []subscription
	nextID        int

	pending *mailbox[events.Event]
	logger  *slog.Logger
}

func newEventBus(logger *slog.Logger) *eventBus {
	return &eventBus{pending: newMailbox[events.Event](), logger: logger}
}

func (b *eventBus) subscribe(deliver func(events.Event)) (unsubscribe func()) {
	if deliver == nil {
		return func() {}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscriptions = append(b.subscriptions, subscription{id: id, deliver: deliver})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, sub := range b.subscriptions {
				if sub.id == id {
					b.subscriptions = append(b.subscriptions[:i:i], b.subscriptions[i+1:]...)
					return
				}
			}
		})
	}
}

func (b *eventBus) publish(event events.Event) {
	if !b.pending.push(event) {
		b.logger.Debug("event published after close", "kind", event.Kind())
	}
}

func (b *eventBus) close() { b.pending.close() }

func (b *eventBus) run(ctx context.Context) error {
	b.pending.consume(ctx, b.dispatch)
	return nil
}

func (b *eventBus) dispatch(event events.Event) {
	b.mu.Lock()
	subscriptions := b.subscriptions
	b.mu.Unlock()

	for _, sub := range subscriptions {
		b.deliver(sub, event)
	}
}

func (b *eventBus) deliver(sub subscription, event events.Event) {
	defer func() {
		if recovered := recover(); recovered != nil {
			b.logger.Error("event subscriber panicked", "kind", event.Kind(), "panic", recovered)
		}
	}()

	sub.deliver(event)
}
