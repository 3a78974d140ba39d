// Command ingress runs the Ingress API binary (spec §4.7): the thin HTTP
// surface that validates scan requests, allocates scan records, and
// enqueues scan_asset jobs onto the core queue. Bootstrap sequence
// generalizes the teacher's root main.go connect/ping/migrate/serve flow.
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/reconnity/easm-core/internal/api"
	"github.com/reconnity/easm-core/internal/config"
	"github.com/reconnity/easm-core/internal/platform/db"
	"github.com/reconnity/easm-core/internal/platform/queue"
	"github.com/reconnity/easm-core/internal/platform/telemetry"
	"github.com/reconnity/easm-core/internal/scanservice"
)

// version is set at build time via -ldflags; defaults to "dev" otherwise.
var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("ingress: no .env file found, reading from process environment")
	}
	cfg := config.Load()

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("ingress: open database: %v", err)
	}

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewQueueMetrics(reg)

	amqpQueue, err := queue.Dial(cfg.RabbitMQURL, metrics)
	if err != nil {
		log.Fatalf("ingress: dial rabbitmq: %v", err)
	}
	defer amqpQueue.Close()

	go func() {
		log.Printf("ingress: metrics listening on %s", cfg.MetricsAddr)
		if err := telemetry.Serve(cfg.MetricsAddr, reg); err != nil {
			log.Printf("ingress: metrics server stopped: %v", err)
		}
	}()

	svc := scanservice.NewWithRiskScoreTTL(database, cfg.RiskScoreTTL)
	handler := api.NewScanHandler(svc, amqpQueue, version)
	router := api.NewRouter(handler)

	addr := envOr("INGRESS_ADDR", ":8080")
	log.Printf("ingress: listening on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("ingress: server exited: %v", err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
