package event

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	defaultPoolSize = 10000
	defaultTimeout  = 30 * time.Second
)

type Event interface {
	Name() string
}

// Keyed events sharing a key are handled one at a time, in publish order.
type Keyed interface {
	Event
	Key() string
}

type Handler func(ctx context.Context, e Event) error

// Bus is an in-memory event bus.
//
// Unkeyed events are dispatched concurrently on a bounded pool. Keyed events go to a lane per
// key, which is drained by a single goroutine; Publish never blocks on a lane, so it is safe to
// call while holding a lock.
type Bus struct {
	pool chan struct{}
	wg   *sync.WaitGroup

	mu       sync.RWMutex
	handlers map[string][]Handler

	lmu   sync.Mutex
	lanes map[string]*lane
}

type lane struct {
	queue []pending
}

type pending struct {
	ctx context.Context
	e   Event
}

// NewBus create a new event bus. Caller should call Stop for graceful shutdown the bus.
func NewBus() *Bus {
	return &Bus{
		pool:     make(chan struct{}, defaultPoolSize),
		wg:       new(sync.WaitGroup),
		handlers: make(map[string][]Handler),
		lanes:    make(map[string]*lane),
	}
}

// Subscribe to an event
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[name] = append(b.handlers[name], h)
}

// Publish an event
func (b *Bus) Publish(ctx context.Context, e Event) {
	if k, ok := e.(Keyed); ok {
		b.enqueue(ctx, k)
		return
	}

	for _, h := range b.handlersOf(e.Name()) {
		b.dispatch(ctx, h, e)
	}
}

func (b *Bus) handlersOf(name string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.handlers[name]
}

func (b *Bus) dispatch(ctx context.Context, h Handler, e Event) {
	b.wg.Add(1)

	b.pool <- struct{}{}

	go func() {
		defer func() {
			<-b.pool
			b.wg.Done()
		}()

		b.handle(ctx, h, e)
	}()
}

func (b *Bus) enqueue(ctx context.Context, e Keyed) {
	b.lmu.Lock()
	defer b.lmu.Unlock()

	l, running := b.lanes[e.Key()]
	if !running {
		l = &lane{}
		b.lanes[e.Key()] = l
	}
	l.queue = append(l.queue, pending{ctx: ctx, e: e})

	if !running {
		b.wg.Add(1)
		go b.drain(e.Key(), l)
	}
}

// drain runs the lane until its queue is empty, then removes it.
func (b *Bus) drain(key string, l *lane) {
	defer b.wg.Done()

	for {
		b.lmu.Lock()
		if len(l.queue) == 0 {
			delete(b.lanes, key)
			b.lmu.Unlock()
			return
		}
		p := l.queue[0]
		l.queue[0] = pending{}
		l.queue = l.queue[1:]
		b.lmu.Unlock()

		for _, h := range b.handlersOf(p.e.Name()) {
			b.handle(p.ctx, h, p.e)
		}
	}
}

func (b *Bus) handle(ctx context.Context, h Handler, e Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultTimeout)
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "event: handler panic",
				"event", e.Name(),
				"error", fmt.Errorf("%v, stack: %s", r, debug.Stack()),
			)
		}

		cancel()
	}()

	if err := h(ctx, e); err != nil {
		slog.ErrorContext(ctx, "event: handle event failed",
			"event", e.Name(),
			"error", err,
		)
	}
}

// Stop waits for all handlers to finish
func (b *Bus) Stop() {
	b.wg.Wait()
}
