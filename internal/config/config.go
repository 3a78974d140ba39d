// Package config loads the environment configuration recognized by every
// binary in this repository, following the teacher's godotenv + os.Getenv
// pattern (main.go's "Info: Nie znaleziono pliku .env" startup log).
package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds every environment variable recognized by spec §6.5.
type Config struct {
	DatabaseURL  string
	RabbitMQURL  string
	ScannerType  string
	RiskScoreTTL time.Duration
	LogLevel     string
	MetricsAddr  string

	ScanTimeoutPortFast time.Duration
	ScanTimeoutPortDeep time.Duration
	ScanTimeoutVuln     time.Duration

	CoreWorkers    int
	ScannerWorkers int
}

// Load reads the process environment into a Config, applying the same
// defaults the original EASM source uses. It does not fail if values are
// missing; an empty DatabaseURL/RabbitMQURL is passed through as is and only
// fails when a binary that uses it connects (a worker binary for one scanner
// type never opens the database, for instance).
func Load() Config {
	return Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RabbitMQURL:  os.Getenv("RABBITMQ_URL"),
		ScannerType:  os.Getenv("SCANNER_TYPE"),
		RiskScoreTTL: days(envInt("RISK_SCORE_TTL_DAYS", 30)),
		LogLevel:     envString("LOG_LEVEL", "info"),
		MetricsAddr:  envString("METRICS_ADDR", ":9090"),

		ScanTimeoutPortFast: seconds(envInt("SCAN_TIMEOUT_PORT_FAST", 60)),
		ScanTimeoutPortDeep: seconds(envInt("SCAN_TIMEOUT_PORT_DEEP", 900)),
		ScanTimeoutVuln:     seconds(envInt("SCAN_TIMEOUT_VULN", 1800)),

		CoreWorkers:    envInt("CORE_WORKERS", 0),
		ScannerWorkers: envInt("SCANNER_WORKERS", 4),
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("config: invalid %s=%q, using default %d", key, v, def)
		return def
	}
	return n
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
func days(n int) time.Duration    { return time.Duration(n) * 24 * time.Hour }
