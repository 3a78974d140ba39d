package queue

import (
	"context"
	"sync"
)

// MemoryQueue is an in-process JobQueue used by dispatcher/resultprocessor
// unit tests in place of a real broker; it preserves the same at-least-once,
// explicit-ack contract as AMQPQueue.
type MemoryQueue struct {
	mu     sync.Mutex
	queues map[string]chan Delivery
}

// NewMemoryQueue returns a ready MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{queues: make(map[string]chan Delivery)}
}

func (q *MemoryQueue) chanFor(name string) chan Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.queues[name]
	if !ok {
		ch = make(chan Delivery, 256)
		q.queues[name] = ch
	}
	return ch
}

// Enqueue never fails transiently; it blocks while the queue's buffer is
// full and returns ctx's error if ctx is canceled first.
func (q *MemoryQueue) Enqueue(ctx context.Context, queueName string, env Envelope) error {
	ch := q.chanFor(queueName)
	d := Delivery{Envelope: env, Ack: func() {}}
	d.Nack = func(requeue bool) {
		if requeue {
			go func() { ch <- d }()
		}
	}
	select {
	case ch <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns the raw channel backing queueName.
func (q *MemoryQueue) Consume(ctx context.Context, queueName string) (<-chan Delivery, error) {
	return q.chanFor(queueName), nil
}

// Close is a no-op; MemoryQueue has no external resources.
func (q *MemoryQueue) Close() error { return nil }
