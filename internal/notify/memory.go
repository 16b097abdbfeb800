package notify

import (
	"context"
	"sync"
)

// subBufSize is the per-subscriber channel buffer.
const subBufSize = 64

// MemoryBus is an in-process [Bus].  It is used by tests and by the
// single-process mode of the CLI.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[*memorySub]struct{}
	closed bool
}

// type check
var _ Bus = (*MemoryBus)(nil)

// memorySub is a single subscription to a [MemoryBus].
type memorySub struct {
	ch   chan Notification
	done chan struct{}
	once sync.Once
}

// NewMemoryBus returns a new properly initialized *MemoryBus.
func NewMemoryBus() (b *MemoryBus) {
	return &MemoryBus{
		subs: map[*memorySub]struct{}{},
	}
}

// Post implements the [Bus] interface for *MemoryBus.  It blocks while a
// subscriber's buffer is full.
func (b *MemoryBus) Post(ctx context.Context, n Notification) (err error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	for s := range b.subs {
		select {
		case s.ch <- n:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// Subscribe implements the [Bus] interface for *MemoryBus.
func (b *MemoryBus) Subscribe(ctx context.Context) (ch <-chan Notification, err error) {
	s := &memorySub{
		ch:   make(chan Notification, subBufSize),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	b.subs[s] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
			b.unsubscribe(s)
		case <-s.done:
		}
	}()

	return s.ch, nil
}

// unsubscribe removes s.  Closing done first releases any Post blocked on s
// so that the write lock can be taken.
func (b *MemoryBus) unsubscribe(s *memorySub) {
	s.once.Do(func() {
		close(s.done)

		b.mu.Lock()
		defer b.mu.Unlock()

		delete(b.subs, s)
		close(s.ch)
	})
}

// Close implements the [Bus] interface for *MemoryBus.
func (b *MemoryBus) Close() (err error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()

		return nil
	}
	b.closed = true

	subs := make([]*memorySub, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		b.unsubscribe(s)
	}

	return nil
}
