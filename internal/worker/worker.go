// Package worker implements the Scanner Worker component (spec §4.5): a
// generic Worker consuming run_<scanner> jobs and delegating the actual
// scan to a Runner, normalizing output into model.ScanResults before
// reporting completion back onto the core queue.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/reconnity/easm-core/internal/model"
	"github.com/reconnity/easm-core/internal/platform/queue"
)

// Runner executes one scan against target with the given raw options and
// returns normalized results. Implementations shell out to the underlying
// scanner binary (nmap, masscan, nuclei).
type Runner interface {
	Run(ctx context.Context, target string, options json.RawMessage) (model.ScanResults, error)
	Scanner() model.Scanner
}

// maxScanTimeout ceilings any options.timeout override (spec §4.5 step 4)
// so a misbehaving client can't pin a worker on one scan indefinitely.
const maxScanTimeout = 1 * time.Hour

// Worker drains run_<scanner> jobs for one Runner and reports
// process_scan_result jobs back onto the core queue.
type Worker struct {
	q       queue.JobQueue
	runner  Runner
	timeout time.Duration
}

// New returns a Worker for runner, bounding each Run call at timeout.
func New(q queue.JobQueue, runner Runner, timeout time.Duration) *Worker {
	return &Worker{q: q, runner: runner, timeout: timeout}
}

// Run consumes deliveries from this worker's scanner queue until ctx is
// canceled.
func (w *Worker) Run(ctx context.Context) error {
	queueName := queue.ScannerQueue(string(w.runner.Scanner()))
	deliveries, err := w.q.Consume(ctx, queueName)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queueName, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return nil
			}
			w.handle(ctx, delivery)
		}
	}
}

func (w *Worker) handle(ctx context.Context, delivery queue.Delivery) {
	expected := queue.RunFunction(string(w.runner.Scanner()))
	if delivery.Envelope.Function != expected {
		log.Printf("worker(%s): ignoring function %q", w.runner.Scanner(), delivery.Envelope.Function)
		delivery.Ack()
		return
	}

	var args queue.RunScanArgs
	if err := json.Unmarshal(delivery.Envelope.Args, &args); err != nil {
		w.reportFailure(ctx, delivery.Envelope.ScanID, fmt.Sprintf("malformed run args: %v", err))
		delivery.Ack()
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, effectiveTimeout(w.timeout, args.TimeoutSeconds))
	defer cancel()

	result, err := w.runner.Run(runCtx, args.Target, args.Options)
	if err != nil {
		w.reportFailure(ctx, delivery.Envelope.ScanID, err.Error())
		delivery.Ack()
		return
	}

	result.ScanID = delivery.Envelope.ScanID
	result.Scanner = string(w.runner.Scanner())
	result.Target = args.Target
	result.Timestamp = time.Now().UTC().Format(time.RFC3339)

	w.reportCompletion(ctx, delivery.Envelope.ScanID, result)
	delivery.Ack()
}

// effectiveTimeout applies the options.timeout override (seconds) over the
// scanner's configured default, clamped to maxScanTimeout. A non-positive
// override means the client didn't set one, so the default applies.
func effectiveTimeout(def time.Duration, overrideSeconds int) time.Duration {
	if overrideSeconds <= 0 {
		return def
	}
	t := time.Duration(overrideSeconds) * time.Second
	if t > maxScanTimeout {
		return maxScanTimeout
	}
	return t
}

func (w *Worker) reportCompletion(ctx context.Context, scanID string, result model.ScanResults) {
	raw, err := json.Marshal(result)
	if err != nil {
		w.reportFailure(ctx, scanID, fmt.Sprintf("marshal results: %v", err))
		return
	}

	env, err := queue.Marshal(queue.FuncProcessScanResult, scanID, queue.ProcessScanResultArgs{
		Status:  "completed",
		Results: raw,
		Scanner: result.Scanner,
	})
	if err != nil {
		log.Printf("worker: marshal completion envelope for %s: %v", scanID, err)
		return
	}
	if err := w.q.Enqueue(ctx, queue.CoreQueue, env); err != nil {
		log.Printf("worker: enqueue completion for %s: %v", scanID, err)
	}
}

func (w *Worker) reportFailure(ctx context.Context, scanID, reason string) {
	env, err := queue.Marshal(queue.FuncProcessScanResult, scanID, queue.ProcessScanResultArgs{
		Status:  "failed",
		Error:   reason,
		Scanner: string(w.runner.Scanner()),
	})
	if err != nil {
		log.Printf("worker: marshal failure envelope for %s: %v", scanID, err)
		return
	}
	if err := w.q.Enqueue(ctx, queue.CoreQueue, env); err != nil {
		log.Printf("worker: enqueue failure for %s: %v", scanID, err)
	}
}
