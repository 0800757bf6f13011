package recorder

import (
	"context"
	"sync"
)

// mailbox is an unbounded FIFO with a single consumer. Producers never block,
// so frame and timer callbacks can post from any goroutine while the consumer
// is busy tearing their source down.
type mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	// notify is signalled whenever items are added or the mailbox closes.
	notify chan struct{}
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{notify: make(chan struct{}, 1)}
}

// push appends item and reports whether it was accepted.
func (m *mailbox[T]) push(item T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, item)
	m.mu.Unlock()

	m.signal()
	return true
}

// close stops accepting items. Items already queued are still consumed.
func (m *mailbox[T]) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.signal()
}

func (m *mailbox[T]) signal() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *mailbox[T]) take() []T {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.items
	m.items = nil
	return items
}

func (m *mailbox[T]) drained() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed && len(m.items) == 0
}

// consume hands every item to handle in order until the mailbox is closed and
// empty, or ctx is done.
func (m *mailbox[T]) consume(ctx context.Context, handle func(T)) {
	for {
		for _, item := range m.take() {
			handle(item)
		}

		if m.drained() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-m.notify:
		}
	}
}
