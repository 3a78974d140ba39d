// Command core runs the Dispatcher and Result Processor as two consumer
// pools sharing one database connection and one AMQP connection, per
// spec §5's "independent worker pools per queue, no shared in-process
// state beyond Scan Store/Job Queue" model.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/reconnity/easm-core/internal/config"
	"github.com/reconnity/easm-core/internal/dispatcher"
	"github.com/reconnity/easm-core/internal/platform/db"
	"github.com/reconnity/easm-core/internal/platform/queue"
	"github.com/reconnity/easm-core/internal/platform/telemetry"
	"github.com/reconnity/easm-core/internal/resultprocessor"
	"github.com/reconnity/easm-core/internal/scanservice"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("core: no .env file found, reading from process environment")
	}
	cfg := config.Load()

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("core: open database: %v", err)
	}

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewQueueMetrics(reg)

	amqpQueue, err := queue.Dial(cfg.RabbitMQURL, metrics)
	if err != nil {
		log.Fatalf("core: dial rabbitmq: %v", err)
	}
	defer amqpQueue.Close()

	go func() {
		log.Printf("core: metrics listening on %s", cfg.MetricsAddr)
		if err := telemetry.Serve(cfg.MetricsAddr, reg); err != nil {
			log.Printf("core: metrics server stopped: %v", err)
		}
	}()

	svc := scanservice.NewWithRiskScoreTTL(database, cfg.RiskScoreTTL)
	disp := dispatcher.New(amqpQueue, metrics)
	proc := resultprocessor.New(amqpQueue, svc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workers := cfg.CoreWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var wg sync.WaitGroup
	// The Dispatcher and Result Processor both consume the core queue but
	// route on function name, so each gets its own pool of goroutines
	// running the same Run loop — amqp091-go fans deliveries out to
	// whichever goroutine calls Consume next.
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := disp.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("core: dispatcher pool worker exited: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("core: result processor pool worker exited: %v", err)
			}
		}()
	}

	log.Printf("core: running with %d workers per pool", workers)
	<-ctx.Done()
	log.Println("core: shutting down")
	wg.Wait()
	os.Exit(0)
}
