// Package resultprocessor implements the Result Processor component
// (spec §4.3): it consumes process_scan_result jobs from the core queue
// and is the only caller of ScanService.CompleteScan/FailScan, keeping every
// terminal Scan Store mutation behind one component.
package resultprocessor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/reconnity/easm-core/internal/apperr"
	"github.com/reconnity/easm-core/internal/platform/queue"
	"github.com/reconnity/easm-core/internal/scanservice"
)

// ScanCompleter is the subset of scanservice.Service the Result Processor
// depends on, narrowed for testability.
type ScanCompleter interface {
	CompleteScan(ctx context.Context, scanID uuid.UUID, results json.RawMessage) error
	FailScan(ctx context.Context, scanID uuid.UUID, errMsg string) error
}

var _ ScanCompleter = (*scanservice.Service)(nil)

// Processor drains process_scan_result jobs and applies them to the scan
// service.
type Processor struct {
	q  queue.JobQueue
	sv ScanCompleter
}

// New returns a Processor over q, applying completions through sv.
func New(q queue.JobQueue, sv ScanCompleter) *Processor {
	return &Processor{q: q, sv: sv}
}

// Run consumes core-queue deliveries until ctx is canceled.
func (p *Processor) Run(ctx context.Context) error {
	deliveries, err := p.q.Consume(ctx, queue.CoreQueue)
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
			p.handle(ctx, delivery)
		}
	}
}

func (p *Processor) handle(ctx context.Context, delivery queue.Delivery) {
	if delivery.Envelope.Function != queue.FuncProcessScanResult {
		// The core queue is shared with the Dispatcher's scan_asset jobs
		// (spec §2); requeue those so the other consumer pool picks them
		// up, and drop anything else as poison.
		if delivery.Envelope.Function == queue.FuncScanAsset {
			delivery.Nack(true)
			return
		}
		log.Printf("resultprocessor: dropping unrecognized function %q", delivery.Envelope.Function)
		delivery.Ack()
		return
	}

	if err := p.apply(ctx, delivery.Envelope); err != nil {
		log.Printf("resultprocessor: scan %s: %v", delivery.Envelope.ScanID, err)
		// Transient store errors are retried by requeueing (spec §7: "job
		// retry inside workers"); only poison payloads (malformed args, an
		// unparseable scan id) are dropped for good.
		delivery.Nack(apperr.Is(err, apperr.StoreUnavailable))
		return
	}

	delivery.Ack()
}

func (p *Processor) apply(ctx context.Context, env queue.Envelope) error {
	var args queue.ProcessScanResultArgs
	if err := json.Unmarshal(env.Args, &args); err != nil {
		return fmt.Errorf("decode process_scan_result args: %w", err)
	}

	scanID, err := uuid.Parse(env.ScanID)
	if err != nil {
		return fmt.Errorf("invalid scan id %q: %w", env.ScanID, err)
	}

	switch args.Status {
	case "completed":
		if err := p.sv.CompleteScan(ctx, scanID, args.Results); err != nil {
			return fmt.Errorf("complete scan: %w", err)
		}
	case "failed":
		if err := p.sv.FailScan(ctx, scanID, args.Error); err != nil {
			return fmt.Errorf("fail scan: %w", err)
		}
	default:
		// Unknown status: ack without requeue per spec §4.3 Edge cases,
		// since redelivery can never make an unrecognized status valid.
		log.Printf("resultprocessor: scan %s: unknown status %q, dropping", env.ScanID, args.Status)
	}

	return nil
}
