package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/reconnity/easm-core/internal/apperr"
	"github.com/reconnity/easm-core/internal/platform/telemetry"
)

// AMQPQueue is the RabbitMQ-backed JobQueue, generalizing the teacher's
// main.go connection/channel/QueueDeclare sequence and
// ScanHandler.HandleScanSubmission's PublishWithContext call into a
// reusable component shared by Ingress, Dispatcher, Result Processor, and
// every Scanner Worker.
type AMQPQueue struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	metrics *telemetry.QueueMetrics
}

// Dial connects to url, opens a channel, and returns a ready AMQPQueue.
// metrics may be nil to disable observability (e.g. in tests).
func Dial(url string, metrics *telemetry.QueueMetrics) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &AMQPQueue{conn: conn, ch: ch, metrics: metrics}, nil
}

// declare ensures queueName exists, durable, matching the teacher's
// scan_queue declaration. RabbitMQ's declare response reports the queue's
// current message count, which is the only depth reading amqp091-go
// exposes without a separate management-API call, so it doubles as the
// Depth gauge update point.
func (q *AMQPQueue) declare(queueName string) error {
	dq, err := q.ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return err
	}
	if q.metrics != nil {
		q.metrics.Depth.WithLabelValues(queueName).Set(float64(dq.Messages))
	}
	return nil
}

// retryPolicy builds the exponential backoff schedule from spec §4.6:
// initial 0.5s, factor 2, max 3 attempts.
func retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, 2) // 3 total attempts
}

// Enqueue publishes env to queueName, retrying transient publish failures
// per the §4.6 retry policy before surfacing a QueueUnavailable-class error
// to the caller.
func (q *AMQPQueue) Enqueue(ctx context.Context, queueName string, env Envelope) error {
	if err := q.declare(queueName); err != nil {
		return fmt.Errorf("declare queue %s: %w", queueName, err)
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	attempt := 0
	op := func() error {
		attempt++
		publishErr := q.ch.PublishWithContext(ctx,
			"",
			queueName,
			false,
			false,
			amqp.Publishing{
				DeliveryMode: amqp.Persistent,
				ContentType:  "application/json",
				Timestamp:    time.Now().UTC(),
				Body:         body,
			})
		if attempt > 1 && q.metrics != nil {
			q.metrics.Retried.WithLabelValues(queueName, env.Function).Inc()
		}
		return publishErr
	}

	if err := backoff.Retry(op, backoff.WithContext(retryPolicy(), ctx)); err != nil {
		return apperr.Wrap(apperr.QueueUnavailable, fmt.Sprintf("enqueue %s to %s after retries", env.Function, queueName), err)
	}
	return nil
}

// Consume registers a consumer on queueName and adapts amqp091-go
// deliveries into Delivery values, updating Delivered/Succeeded/Failed
// metrics as the caller acks/nacks.
func (q *AMQPQueue) Consume(ctx context.Context, queueName string) (<-chan Delivery, error) {
	if err := q.declare(queueName); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queueName, err)
	}

	msgs, err := q.ch.Consume(
		queueName,
		"",    // consumer tag
		false, // auto-ack: false, callers ack explicitly
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("consume from %s: %w", queueName, err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal(d.Body, &env); err != nil {
					log.Printf("queue: dropping undecodable message on %s: %v", queueName, err)
					d.Nack(false, false)
					continue
				}
				if q.metrics != nil {
					q.metrics.Delivered.WithLabelValues(queueName, env.Function).Inc()
					q.metrics.InFlight.WithLabelValues(queueName).Inc()
					// RabbitMQ delivers in FIFO order per queue, so the
					// message just handed to a consumer was the oldest one
					// waiting; its publish timestamp approximates the
					// queue's oldest-job age (spec §4.6).
					if !d.Timestamp.IsZero() {
						q.metrics.OldestJobAge.WithLabelValues(queueName).Set(time.Since(d.Timestamp).Seconds())
					}
				}
				delivery := d
				out <- Delivery{
					Envelope: env,
					Ack: func() {
						if q.metrics != nil {
							q.metrics.Succeeded.WithLabelValues(queueName, env.Function).Inc()
							q.metrics.InFlight.WithLabelValues(queueName).Dec()
						}
						delivery.Ack(false)
					},
					Nack: func(requeue bool) {
						if q.metrics != nil {
							if !requeue {
								q.metrics.Failed.WithLabelValues(queueName, env.Function).Inc()
							}
							q.metrics.InFlight.WithLabelValues(queueName).Dec()
						}
						delivery.Nack(false, requeue)
					},
				}
			}
		}
	}()
	return out, nil
}

// Close tears down the channel and connection.
func (q *AMQPQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		return err
	}
	return q.conn.Close()
}
