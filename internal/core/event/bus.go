package event

import (
	"reflect"
	"sync"
)

// Bus is a double-buffered event bus. Events emitted in tick N are readable
// in tick N+1: the event system swaps buffers and dispatches at PreUpdate.
// Event types are delivered in the order they were first emitted or
// subscribed, so delivery order is stable across runs.
type Bus struct {
	mu         sync.Mutex // only protects handler registration
	order      []reflect.Type
	queues     map[reflect.Type]*queue
	dispatched uint64
}

// queue holds one event type's buffers and its handlers, already wrapped so
// dispatch needs no reflection.
type queue struct {
	front, back []any
	handlers    []func(any)
}

func NewBus() *Bus {
	return &Bus{queues: make(map[reflect.Type]*queue)}
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func (b *Bus) queueFor(t reflect.Type) *queue {
	q, ok := b.queues[t]
	if !ok {
		q = &queue{}
		b.queues[t] = q
		b.order = append(b.order, t)
	}
	return q
}

// Emit queues an event into the back buffer (will be readable next tick).
func Emit[T any](b *Bus, event T) {
	q := b.queueFor(typeOf[T]())
	q.back = append(q.back, event)
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queueFor(typeOf[T]())
	q.handlers = append(q.handlers, func(ev any) { fn(ev.(T)) })
}

// SwapBuffers rotates back to front and empties the new back buffer.
// Called once at tick start.
func (b *Bus) SwapBuffers() {
	for _, t := range b.order {
		q := b.queues[t]
		clear(q.front)
		q.front, q.back = q.back, q.front[:0]
	}
}

// Pending returns the number of events waiting in the back buffer.
func (b *Bus) Pending() int {
	n := 0
	for _, q := range b.queues {
		n += len(q.back)
	}
	return n
}

// Dispatched returns the number of events delivered since the bus was built,
// counting each event once however many handlers saw it.
func (b *Bus) Dispatched() uint64 { return b.dispatched }

// DispatchAll delivers all front-buffer events to their subscribed handlers.
// Events emitted by handlers land in the back buffer for the next tick.
func (b *Bus) DispatchAll() {
	for _, t := range b.order {
		q := b.queues[t]
		for _, ev := range q.front {
			for _, h := range q.handlers {
				h(ev)
			}
		}
		b.dispatched += uint64(len(q.front))
	}
}
