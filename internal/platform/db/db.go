// Package db bootstraps the GORM/Postgres connection shared by every
// binary, generalizing the teacher's root main.go connect-ping-migrate
// sequence.
package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/reconnity/easm-core/internal/model"
)

// Open connects to Postgres via dsn, pings it, and runs AutoMigrate for the
// four core entities (Scan, Finding, Asset, RiskScore).
func Open(dsn string) (*gorm.DB, error) {
	database, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return bootstrap(database)
}

// OpenConn wraps an already-established *sql.DB in GORM's postgres dialect
// and runs the same ping/migrate bootstrap as Open. Exists so tests can
// inject a sqlmock connection without a real Postgres instance.
func OpenConn(conn gorm.ConnPool) (*gorm.DB, error) {
	database, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{DisableAutomaticPing: true})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return bootstrap(database)
}

func bootstrap(database *gorm.DB) (*gorm.DB, error) {
	sqlDB, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB instance: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := database.AutoMigrate(&model.Scan{}, &model.Finding{}, &model.Asset{}, &model.RiskScore{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return database, nil
}
