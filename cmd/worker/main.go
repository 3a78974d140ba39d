// Command worker runs one Scanner Worker process (spec §4.5), parameterized
// by SCANNER_TYPE ∈ {port-fast, port-deep, vuln}. One binary, one Runner
// implementation selected at startup — the "generic worker template"
// redesign from spec §9.
package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/reconnity/easm-core/internal/config"
	"github.com/reconnity/easm-core/internal/model"
	"github.com/reconnity/easm-core/internal/platform/queue"
	"github.com/reconnity/easm-core/internal/platform/telemetry"
	"github.com/reconnity/easm-core/internal/worker"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("worker: no .env file found, reading from process environment")
	}
	cfg := config.Load()

	runner, timeout, err := newRunner(cfg)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewQueueMetrics(reg)

	amqpQueue, err := queue.Dial(cfg.RabbitMQURL, metrics)
	if err != nil {
		log.Fatalf("worker: dial rabbitmq: %v", err)
	}
	defer amqpQueue.Close()

	go func() {
		log.Printf("worker(%s): metrics listening on %s", cfg.ScannerType, cfg.MetricsAddr)
		if err := telemetry.Serve(cfg.MetricsAddr, reg); err != nil {
			log.Printf("worker(%s): metrics server stopped: %v", cfg.ScannerType, err)
		}
	}()

	w := worker.New(amqpQueue, runner, timeout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Scanner Workers are I/O-bound waiting on the child scanner process,
	// so the pool defaults small (spec §5) rather than to NumCPU.
	poolSize := cfg.ScannerWorkers
	if poolSize <= 0 {
		poolSize = 4
	}

	var wg sync.WaitGroup
	for i := 0; i < poolSize; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("worker(%s): pool worker exited: %v", cfg.ScannerType, err)
			}
		}()
	}

	log.Printf("worker(%s): running with %d pool workers, timeout %s", cfg.ScannerType, poolSize, timeout)
	<-ctx.Done()
	log.Printf("worker(%s): shutting down", cfg.ScannerType)
	wg.Wait()
}

func newRunner(cfg config.Config) (worker.Runner, time.Duration, error) {
	switch model.Scanner(cfg.ScannerType) {
	case model.ScannerPortFast:
		return &worker.PortFastRunner{}, cfg.ScanTimeoutPortFast, nil
	case model.ScannerPortDeep:
		return &worker.PortDeepRunner{}, cfg.ScanTimeoutPortDeep, nil
	case model.ScannerVuln:
		return &worker.VulnRunner{}, cfg.ScanTimeoutVuln, nil
	default:
		return nil, 0, fmt.Errorf("unsupported SCANNER_TYPE %q (want one of %v)", cfg.ScannerType, model.Scanners)
	}
}
