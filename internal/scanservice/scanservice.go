// Package scanservice implements the Scan Service (spec §4.1): the sole
// mutator of the Scan Store, owning every state transition of a Scan and
// the transactional derivation of Findings, Assets, and RiskScores.
//
// It generalizes the teacher's ScanHandler.HandleResultSubmission
// transaction (internal/handlers/scan_handler.go in the teacher repo) from
// one-shot "insert results, update status" into the full state machine.
package scanservice

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/reconnity/easm-core/internal/apperr"
	"github.com/reconnity/easm-core/internal/model"
	"github.com/reconnity/easm-core/internal/riskengine"
	"github.com/reconnity/easm-core/internal/validate"
)

// defaultRiskScoreTTL matches spec §4.4's fixed 30-day expiry, used when a
// Service is constructed without an explicit override.
const defaultRiskScoreTTL = 30 * 24 * time.Hour

// Service is the transactional facade over the Scan Store.
type Service struct {
	db           *gorm.DB
	riskScoreTTL time.Duration
}

// New returns a Service backed by db, with RiskScores expiring after the
// default TTL (spec §4.4). Use NewWithRiskScoreTTL to override it from
// config.RiskScoreTTL.
func New(db *gorm.DB) *Service {
	return NewWithRiskScoreTTL(db, defaultRiskScoreTTL)
}

// NewWithRiskScoreTTL returns a Service backed by db whose RiskScores
// expire after ttl (wired from RISK_SCORE_TTL_DAYS).
func NewWithRiskScoreTTL(db *gorm.DB, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = defaultRiskScoreTTL
	}
	return &Service{db: db, riskScoreTTL: ttl}
}

// CreateScanResult is returned by CreateScan.
type CreateScanResult struct {
	ScanID uuid.UUID
	Status model.ScanStatus
}

// CreateScan validates target/scanner and persists a new Scan with
// status=queued. Validation is the caller's Ingress boundary concern for
// the grammar in spec §6.2 / closed scanner set; CreateScan re-checks both
// so the service is safe to call directly (e.g. from tests or the CLI).
func (s *Service) CreateScan(ctx context.Context, target string, scanner model.Scanner, options json.RawMessage) (CreateScanResult, error) {
	if !validate.Target(target) {
		return CreateScanResult{}, apperr.New(apperr.InvalidTarget, fmt.Sprintf("invalid target: %q", target))
	}
	if !scanner.IsSupported() {
		return CreateScanResult{}, apperr.New(apperr.UnsupportedScanner, fmt.Sprintf("unsupported scanner: %q", scanner))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return CreateScanResult{}, apperr.Wrap(apperr.StoreUnavailable, "generate scan id", err)
	}

	scan := model.Scan{
		ID:        id,
		Target:    target,
		Scanner:   scanner,
		Status:    model.ScanQueued,
		Options:   datatypes.JSON(optionsOrEmpty(options)),
		CreatedAt: time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&scan).Error; err != nil {
		return CreateScanResult{}, apperr.Wrap(apperr.StoreUnavailable, "create scan record", err)
	}

	return CreateScanResult{ScanID: scan.ID, Status: scan.Status}, nil
}

// ScanView is the public read model returned by GetScan: the Scan plus its
// Findings and current RiskScore once the scan has completed.
type ScanView struct {
	model.Scan
	Progress  int              `json:"progress"`
	Findings  []model.Finding  `json:"findings,omitempty"`
	RiskScore *model.RiskScore `json:"risk_score,omitempty"`
}

// GetScan reads a scan by id, including Findings and RiskScore when the
// scan has completed (spec §4.1 get_scan).
func (s *Service) GetScan(ctx context.Context, scanID uuid.UUID) (ScanView, error) {
	var scan model.Scan
	if err := s.db.WithContext(ctx).First(&scan, "id = ?", scanID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return ScanView{}, apperr.New(apperr.NotFound, "scan not found")
		}
		return ScanView{}, apperr.Wrap(apperr.StoreUnavailable, "query scan", err)
	}

	view := ScanView{Scan: scan, Progress: progressFor(scan.Status)}

	if scan.Status == model.ScanCompleted {
		var findings []model.Finding
		if err := s.db.WithContext(ctx).Where("scan_id = ?", scanID).Find(&findings).Error; err != nil {
			return ScanView{}, apperr.Wrap(apperr.StoreUnavailable, "query findings", err)
		}
		view.Findings = findings

		var risk model.RiskScore
		if err := s.db.WithContext(ctx).Where("target = ?", scan.Target).First(&risk).Error; err == nil {
			view.RiskScore = &risk
		} else if err != gorm.ErrRecordNotFound {
			return ScanView{}, apperr.Wrap(apperr.StoreUnavailable, "query risk score", err)
		}
	}

	return view, nil
}

func progressFor(status model.ScanStatus) int {
	switch status {
	case model.ScanQueued, model.ScanRunning:
		if status == model.ScanRunning {
			return 50
		}
		return 0
	case model.ScanCompleted, model.ScanFailed:
		return 100
	default:
		return 0
	}
}

// CompleteScan transitions a scan queued|running -> completed, atomically
// deriving Findings, upserting the Asset, and recomputing the RiskScore.
// Redelivery of the same completion (idempotency, spec §4.3 P5) is a no-op:
// once the scan is terminal, CompleteScan returns success without
// comparing the incoming payload to the stored one.
func (s *Service) CompleteScan(ctx context.Context, scanID uuid.UUID, results json.RawMessage) error {
	var parsed model.ScanResults
	if err := json.Unmarshal(results, &parsed); err != nil {
		return apperr.Wrap(apperr.ScannerParseError, "decode scan results", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var scan model.Scan
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&scan, "id = ?", scanID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperr.New(apperr.NotFound, "scan not found")
			}
			return apperr.Wrap(apperr.StoreUnavailable, "lock scan row", err)
		}

		if isTerminal(scan.Status) {
			// At-least-once redelivery: already applied, don't reapply
			// side effects. A mismatched payload on an already-terminal
			// scan is a bug in an upstream producer, not something the
			// core should crash on, so it is tolerated as specified in
			// spec §4.1 Edge cases.
			return nil
		}

		now := time.Now().UTC()
		scan.Status = model.ScanCompleted
		scan.CompletedAt = &now
		scan.Results = datatypes.JSON(results)
		if err := tx.Save(&scan).Error; err != nil {
			return apperr.Wrap(apperr.StoreUnavailable, "update scan", err)
		}

		findings, err := insertFindings(tx, scan, parsed)
		if err != nil {
			return err
		}

		if err := upsertAsset(tx, parsed.Target, scanID.String(), string(scan.Scanner), now); err != nil {
			return err
		}

		if err := recomputeRiskScore(tx, parsed.Target, findings, now, s.riskScoreTTL); err != nil {
			return err
		}

		return nil
	})
}

// FailScan transitions a scan queued|running -> failed with error_message.
// No Finding/Asset/RiskScore side effects (spec §4.3, Scenario 4).
func (s *Service) FailScan(ctx context.Context, scanID uuid.UUID, errMsg string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var scan model.Scan
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&scan, "id = ?", scanID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperr.New(apperr.NotFound, "scan not found")
			}
			return apperr.Wrap(apperr.StoreUnavailable, "lock scan row", err)
		}

		if isTerminal(scan.Status) {
			return nil
		}

		now := time.Now().UTC()
		scan.Status = model.ScanFailed
		scan.CompletedAt = &now
		scan.ErrorMessage = errMsg
		if err := tx.Save(&scan).Error; err != nil {
			return apperr.Wrap(apperr.StoreUnavailable, "update scan", err)
		}
		return nil
	})
}

func isTerminal(status model.ScanStatus) bool {
	return status == model.ScanCompleted || status == model.ScanFailed
}

func optionsOrEmpty(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}

// insertFindings derives open-port Findings from results.open_ports,
// resolving each port's service from results.services, per spec §4.3.
func insertFindings(tx *gorm.DB, scan model.Scan, results model.ScanResults) ([]model.Finding, error) {
	findings := make([]model.Finding, 0, len(results.OpenPorts))
	for _, port := range results.OpenPorts {
		port := port
		svc := results.Services[strconv.Itoa(port)]
		serviceName := svc.Name
		if serviceName == "" {
			serviceName = "unknown"
		}

		id, err := uuid.NewV7()
		if err != nil {
			return nil, apperr.Wrap(apperr.StoreUnavailable, "generate finding id", err)
		}

		metadata, _ := json.Marshal(map[string]string{"scanner": results.Scanner})

		findings = append(findings, model.Finding{
			ID:          id,
			ScanID:      scan.ID,
			Target:      results.Target,
			FindingType: model.FindingOpenPort,
			Severity:    model.SeverityMedium,
			Title:       fmt.Sprintf("Open port %d", port),
			Description: fmt.Sprintf("Port %d is open and running %s", port, serviceName),
			Port:        &port,
			Service:     serviceName,
			Metadata:    datatypes.JSON(metadata),
			CreatedAt:   time.Now().UTC(),
		})
	}

	for _, v := range results.Vulnerabilities {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, apperr.Wrap(apperr.StoreUnavailable, "generate finding id", err)
		}
		metadata, _ := json.Marshal(map[string]string{"vulnerability_id": v.ID, "url": v.URL, "scanner": results.Scanner})
		findings = append(findings, model.Finding{
			ID:          id,
			ScanID:      scan.ID,
			Target:      results.Target,
			FindingType: model.FindingVulnerability,
			Severity:    model.Severity(v.Severity),
			Title:       v.Name,
			Description: v.Description,
			Port:        v.Port,
			Metadata:    datatypes.JSON(metadata),
			CreatedAt:   time.Now().UTC(),
		})
	}

	if len(findings) == 0 {
		return findings, nil
	}

	if err := tx.Create(&findings).Error; err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, "insert findings", err)
	}
	return findings, nil
}

// upsertAsset creates or refreshes the Asset row for target, keyed by the
// unique index on Asset.Target (spec §5 Shared-resource policy).
func upsertAsset(tx *gorm.DB, target, scanID, scanner string, now time.Time) error {
	if target == "" {
		return nil
	}

	assetType := validate.InferAssetType(target)

	var existing model.Asset
	err := tx.Where("target = ?", target).First(&existing).Error
	switch {
	case err == nil:
		meta := map[string]interface{}{}
		_ = json.Unmarshal(existing.Metadata, &meta)
		meta["last_scan_id"] = scanID
		meta["last_scan_time"] = now.Format(time.RFC3339)
		metaRaw, _ := json.Marshal(meta)
		existing.UpdatedAt = now
		existing.Metadata = datatypes.JSON(metaRaw)
		if err := tx.Save(&existing).Error; err != nil {
			return apperr.Wrap(apperr.StoreUnavailable, "update asset", err)
		}
		return nil
	case err == gorm.ErrRecordNotFound:
		id, uerr := uuid.NewV7()
		if uerr != nil {
			return apperr.Wrap(apperr.StoreUnavailable, "generate asset id", uerr)
		}
		metaRaw, _ := json.Marshal(map[string]interface{}{
			"first_scan_id":    scanID,
			"first_scan_time":  now.Format(time.RFC3339),
			"discovery_method": scanner,
		})
		asset := model.Asset{
			ID:        id,
			Target:    target,
			AssetType: assetType,
			Status:    "active",
			CreatedAt: now,
			UpdatedAt: now,
			Metadata:  datatypes.JSON(metaRaw),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "target"}},
			DoUpdates: clause.AssignmentColumns([]string{"updated_at", "metadata"}),
		}).Create(&asset).Error; err != nil {
			return apperr.Wrap(apperr.StoreUnavailable, "create asset", err)
		}
		return nil
	default:
		return apperr.Wrap(apperr.StoreUnavailable, "query asset", err)
	}
}

// recomputeRiskScore replaces (not appends) the RiskScore for target from
// the Findings just derived for this scan (spec §4.3/§4.4), expiring it
// after ttl (RISK_SCORE_TTL_DAYS).
func recomputeRiskScore(tx *gorm.DB, target string, findings []model.Finding, now time.Time, ttl time.Duration) error {
	if target == "" {
		return nil
	}

	result := riskengine.Calculate(findings)
	factorsRaw, _ := json.Marshal(result.Factors)
	expiresAt := now.Add(ttl)

	var existing model.RiskScore
	err := tx.Where("target = ?", target).First(&existing).Error
	switch {
	case err == nil:
		existing.Score = result.Score
		existing.Level = result.Level
		existing.Factors = datatypes.JSON(factorsRaw)
		existing.CalculatedAt = now
		existing.ExpiresAt = expiresAt
		if err := tx.Save(&existing).Error; err != nil {
			return apperr.Wrap(apperr.StoreUnavailable, "update risk score", err)
		}
		return nil
	case err == gorm.ErrRecordNotFound:
		id, uerr := uuid.NewV7()
		if uerr != nil {
			return apperr.Wrap(apperr.StoreUnavailable, "generate risk score id", uerr)
		}
		rs := model.RiskScore{
			ID:           id,
			Target:       target,
			Score:        result.Score,
			Level:        result.Level,
			Factors:      datatypes.JSON(factorsRaw),
			CalculatedAt: now,
			ExpiresAt:    expiresAt,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "target"}},
			DoUpdates: clause.AssignmentColumns([]string{"score", "level", "factors", "calculated_at", "expires_at"}),
		}).Create(&rs).Error; err != nil {
			return apperr.Wrap(apperr.StoreUnavailable, "create risk score", err)
		}
		return nil
	default:
		return apperr.Wrap(apperr.StoreUnavailable, "query risk score", err)
	}
}
