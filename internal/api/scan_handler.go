package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/reconnity/easm-core/internal/apperr"
	"github.com/reconnity/easm-core/internal/model"
	"github.com/reconnity/easm-core/internal/platform/queue"
	"github.com/reconnity/easm-core/internal/scanoptions"
	"github.com/reconnity/easm-core/internal/scanservice"
)

// ScanHandler implements the Ingress HTTP surface from spec §6.1,
// generalizing the teacher's ScanHandler.HandleScanSubmission /
// HandleGetScan into a thin validate-then-delegate layer over ScanService.
type ScanHandler struct {
	svc     *scanservice.Service
	q       queue.JobQueue
	version string
}

// NewScanHandler returns a ScanHandler delegating to svc and publishing
// scan_asset jobs onto q.
func NewScanHandler(svc *scanservice.Service, q queue.JobQueue, version string) *ScanHandler {
	return &ScanHandler{svc: svc, q: q, version: version}
}

// HandleHealth implements GET /health, generalizing the teacher's
// cmd/api/main.go health check.
func (h *ScanHandler) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "easm-core",
		"version": h.version,
	})
}

// createScanRequest is the POST /api/v1/scan request body (spec §6.1).
type createScanRequest struct {
	Target  string          `json:"target" binding:"required"`
	Scanner string          `json:"scanner" binding:"required"`
	Options json.RawMessage `json:"options,omitempty"`
}

// HandleCreateScan implements POST /api/v1/scan.
func (h *ScanHandler) HandleCreateScan(c *gin.Context) {
	var req createScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	scanner := model.Scanner(req.Scanner)
	// The parsed options.timeout override travels inside normalized itself;
	// it is re-parsed and applied to the Worker's deadline by the
	// Dispatcher, not here.
	normalized, _, err := scanoptions.Validate(scanner, req.Options)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	result, err := h.svc.CreateScan(c.Request.Context(), req.Target, scanner, normalized)
	if err != nil {
		writeError(c, err)
		return
	}

	env, err := queue.Marshal(queue.FuncScanAsset, result.ScanID.String(), queue.ScanAssetArgs{
		Target:  req.Target,
		Scanner: req.Scanner,
		Options: normalized,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build scan job"})
		return
	}

	if err := h.q.Enqueue(c.Request.Context(), queue.CoreQueue, env); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to enqueue scan"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"scan_id": result.ScanID,
		"status":  result.Status,
		"message": "scan queued",
	})
}

// HandleGetScan implements GET /api/v1/scan/{scan_id}.
func (h *ScanHandler) HandleGetScan(c *gin.Context) {
	scanID, err := uuid.Parse(c.Param("scan_id"))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid scan_id"})
		return
	}

	view, err := h.svc.GetScan(c.Request.Context(), scanID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// writeError maps apperr.Kind to the status codes from spec §6.1: 404 if
// scan_id unknown, 422 on validation failure, 503 on downstream
// unavailability, 500 otherwise.
func writeError(c *gin.Context, err error) {
	var status int
	switch {
	case apperr.Is(err, apperr.NotFound):
		status = http.StatusNotFound
	case apperr.Is(err, apperr.InvalidTarget), apperr.Is(err, apperr.UnsupportedScanner):
		status = http.StatusUnprocessableEntity
	case apperr.Is(err, apperr.QueueUnavailable), apperr.Is(err, apperr.StoreUnavailable):
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
