// Package dispatcher implements the Dispatcher component (spec §4.2): it
// consumes scan_asset jobs from the core queue, validates the payload
// against the closed scanner set and option schema, and republishes a
// run_<scanner> job onto the matching scanner-<type> queue.
//
// It generalizes the teacher's ScanHandler.HandleScanSubmission publish
// step into a standalone relay stage sitting between Ingress and the
// Scanner Workers.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/reconnity/easm-core/internal/model"
	"github.com/reconnity/easm-core/internal/platform/queue"
	"github.com/reconnity/easm-core/internal/platform/telemetry"
	"github.com/reconnity/easm-core/internal/scanoptions"
)

// Dispatcher routes scan_asset jobs to the scanner-specific queue named by
// the closed scanner set, or emits a process_scan_result(failed) job when
// the payload is malformed or names an unsupported scanner.
type Dispatcher struct {
	q       queue.JobQueue
	metrics *telemetry.QueueMetrics
}

// New returns a Dispatcher over q. metrics may be nil.
func New(q queue.JobQueue, metrics *telemetry.QueueMetrics) *Dispatcher {
	return &Dispatcher{q: q, metrics: metrics}
}

// Run consumes core-queue deliveries until ctx is canceled, handling only
// scan_asset: process_scan_result jobs are requeued for the Result
// Processor, and any other function is acked and dropped, never requeued.
func (d *Dispatcher) Run(ctx context.Context) error {
	deliveries, err := d.q.Consume(ctx, queue.CoreQueue)
	if err != nil {
		return fmt.Errorf("consume core queue: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return nil
			}
			d.handle(ctx, delivery)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, delivery queue.Delivery) {
	if delivery.Envelope.Function != queue.FuncScanAsset {
		// The core queue is shared with the Result Processor's
		// process_scan_result jobs (spec §2); requeue those so the other
		// consumer pool picks them up, and drop anything else as poison.
		if delivery.Envelope.Function == queue.FuncProcessScanResult {
			delivery.Nack(true)
			return
		}
		log.Printf("dispatcher: dropping unrecognized function %q", delivery.Envelope.Function)
		delivery.Ack()
		return
	}

	if err := d.route(ctx, delivery.Envelope); err != nil {
		log.Printf("dispatcher: scan %s: %v", delivery.Envelope.ScanID, err)
		// Malformed/unsupported payloads never reach this branch: route
		// reports them as a failure job and returns nil. An error here means
		// the routed job or the failure job could not be built or enqueued;
		// the delivery is still acked, not requeued.
		delivery.Ack()
		return
	}

	delivery.Ack()
}

func (d *Dispatcher) route(ctx context.Context, env queue.Envelope) error {
	var args queue.ScanAssetArgs
	if err := decodeArgs(env.Args, &args); err != nil {
		return d.fail(ctx, env.ScanID, "", fmt.Sprintf("malformed scan_asset payload: %v", err))
	}

	scanner := model.Scanner(args.Scanner)
	if !scanner.IsSupported() {
		return d.fail(ctx, env.ScanID, args.Scanner, fmt.Sprintf("unsupported scanner: %q", args.Scanner))
	}

	normalized, timeoutOverride, err := scanoptions.Validate(scanner, args.Options)
	if err != nil {
		return d.fail(ctx, env.ScanID, args.Scanner, fmt.Sprintf("invalid options: %v", err))
	}

	runEnv, err := queue.Marshal(queue.RunFunction(string(scanner)), env.ScanID, queue.RunScanArgs{
		Target:         args.Target,
		Options:        normalized,
		TimeoutSeconds: timeoutOverride,
	})
	if err != nil {
		return fmt.Errorf("marshal run job: %w", err)
	}

	return d.q.Enqueue(ctx, queue.ScannerQueue(string(scanner)), runEnv)
}

// fail emits a process_scan_result(status=failed) job back onto the core
// queue so the Result Processor transitions the scan without the
// Dispatcher touching the Scan Store directly (spec §5).
func (d *Dispatcher) fail(ctx context.Context, scanID, scanner, reason string) error {
	env, err := queue.Marshal(queue.FuncProcessScanResult, scanID, queue.ProcessScanResultArgs{
		Status:  "failed",
		Error:   reason,
		Scanner: scanner,
	})
	if err != nil {
		return fmt.Errorf("marshal failure job: %w", err)
	}
	if err := d.q.Enqueue(ctx, queue.CoreQueue, env); err != nil {
		return fmt.Errorf("enqueue failure job: %w", err)
	}
	return nil
}

func decodeArgs(raw []byte, out *queue.ScanAssetArgs) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty args")
	}
	return json.Unmarshal(raw, out)
}
