package queue

import "context"

// Delivery is one message handed to a consumer. Exactly one of Ack/Nack
// must be called per Delivery.
type Delivery struct {
	Envelope Envelope
	Ack      func()
	Nack     func(requeue bool)
}

// JobQueue is the interface the Dispatcher, Result Processor, and Scanner
// Workers depend on; AMQPQueue is the only production implementation
// (spec §9: no second broker backend).
type JobQueue interface {
	// Enqueue publishes env to queueName with the retry policy from spec
	// §4.6 (0.5s initial backoff, factor 2, max 3 attempts).
	Enqueue(ctx context.Context, queueName string, env Envelope) error

	// Consume returns a channel of Deliveries for queueName. The channel
	// closes when ctx is canceled or the underlying connection closes.
	Consume(ctx context.Context, queueName string) (<-chan Delivery, error)

	Close() error
}
