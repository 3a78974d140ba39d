// Package model defines the GORM-backed entities of the scan store: Scan,
// Finding, Asset, and RiskScore, together with the closed sets their string
// fields are drawn from.
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ScanStatus is the closed set a Scan.Status is drawn from. Transitions are
// monotone: Queued -> Running -> (Completed | Failed).
type ScanStatus string

const (
	ScanQueued    ScanStatus = "queued"
	ScanRunning   ScanStatus = "running"
	ScanCompleted ScanStatus = "completed"
	ScanFailed    ScanStatus = "failed"
)

// Scanner is the closed set of scanner tags a Scan can target.
type Scanner string

const (
	ScannerPortFast Scanner = "port-fast"
	ScannerPortDeep Scanner = "port-deep"
	ScannerVuln     Scanner = "vuln"
)

// Scanners lists every supported scanner tag; used for validation and for
// building the Dispatcher's scanner -> queue-name map.
var Scanners = []Scanner{ScannerPortFast, ScannerPortDeep, ScannerVuln}

// IsSupported reports whether s is a member of the closed scanner set.
func (s Scanner) IsSupported() bool {
	for _, v := range Scanners {
		if v == s {
			return true
		}
	}
	return false
}

// Scan is a single request to evaluate one target with one scanner type.
//
// Invariant: CompletedAt is set iff Status is Completed or Failed; exactly
// one of Results/ErrorMessage is non-null once the scan reaches a terminal
// state. StartedAt is never written — see DESIGN.md's Open Question log.
type Scan struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Target       string         `gorm:"index;not null" json:"target"`
	Scanner      Scanner        `gorm:"not null" json:"scanner"`
	Status       ScanStatus     `gorm:"not null;index" json:"status"`
	Options      datatypes.JSON `json:"options"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Results      datatypes.JSON `json:"results,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// FindingType is the closed set a Finding.FindingType is drawn from.
type FindingType string

const (
	FindingOpenPort      FindingType = "open-port"
	FindingService       FindingType = "service"
	FindingVulnerability FindingType = "vulnerability"
)

// Severity is the closed set a Finding.Severity is drawn from.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Finding is an atomic observation extracted from a completed scan's
// results. Findings are insert-only from the core's perspective and exist
// only for scans in a terminal Completed state.
type Finding struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ScanID      uuid.UUID      `gorm:"type:uuid;index;not null" json:"scan_id"`
	Target      string         `gorm:"index;not null" json:"target"`
	FindingType FindingType    `gorm:"not null" json:"finding_type"`
	Severity    Severity       `gorm:"not null" json:"severity"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Port        *int           `json:"port,omitempty"`
	Service     string         `json:"service,omitempty"`
	Metadata    datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	Verified    bool           `json:"verified"`
}

// AssetType is the closed set an Asset.AssetType is drawn from.
type AssetType string

const (
	AssetIP      AssetType = "ip"
	AssetDomain  AssetType = "domain"
	AssetURL     AssetType = "url"
	AssetUnknown AssetType = "unknown"
)

// Asset is a deduplicated record of a target ever seen by the system. At
// most one Asset exists per Target, enforced by a unique index.
type Asset struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Target    string         `gorm:"uniqueIndex;not null" json:"target"`
	AssetType AssetType      `gorm:"not null" json:"asset_type"`
	Status    string         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Metadata  datatypes.JSON `json:"metadata,omitempty"`
}

// RiskScore is a bounded numeric summary of a target's current risk
// posture. At most one RiskScore exists per Target; it is replaced, not
// appended, on each successful scan completion.
type RiskScore struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Target       string         `gorm:"uniqueIndex;not null" json:"target"`
	Score        int            `json:"score"`
	Level        string         `json:"level"`
	Factors      datatypes.JSON `json:"factors"`
	CalculatedAt time.Time      `json:"calculated_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
}
