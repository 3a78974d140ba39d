// Package api provides the Ingress HTTP layer: request validation,
// delegation to the scan service, and error-kind to status-code mapping.
// Routing and CORS setup is modeled directly on the teacher's
// internal/api/router.go.
package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the Ingress gin.Engine, wiring h's handlers onto the
// public /api/v1 surface from spec §6.1.
func NewRouter(h *ScanHandler) *gin.Engine {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", h.HandleHealth)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/scan", h.HandleCreateScan)
		v1.GET("/scan/:scan_id", h.HandleGetScan)
	}

	return r
}
