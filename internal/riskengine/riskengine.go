// Package riskengine implements the deterministic, weighted scoring
// function that turns a set of findings into a bounded risk score and
// level. It is a pure function package — no I/O, no shared state — ported
// from original_source's RiskEngine.calculate_asset_risk.
package riskengine

import (
	"math"
	"strings"

	"github.com/reconnity/easm-core/internal/model"
)

// weights for each risk subcomponent; must sum to 1.0.
const (
	weightOpenPorts       = 0.30
	weightServices        = 0.25
	weightVulnerabilities = 0.35
	weightExposure        = 0.10
)

// HighRiskPorts and MediumRiskPorts classify open-port findings.
var (
	HighRiskPorts = map[int]bool{
		21: true, 23: true, 135: true, 139: true, 445: true, 1433: true,
		1521: true, 3389: true, 5432: true, 5984: true, 6379: true,
		9200: true, 27017: true,
	}
	MediumRiskPorts = map[int]bool{
		22: true, 25: true, 53: true, 80: true, 110: true, 143: true,
		443: true, 993: true, 995: true, 3306: true, 5432: true,
	}
)

// highRiskServiceSubstrings: a service finding whose name contains any of
// these substrings scores 20 instead of 5.
var highRiskServiceSubstrings = []string{
	"ftp", "telnet", "rlogin", "rsh", "finger", "tftp",
	"mysql", "postgresql", "mongodb", "redis", "elasticsearch",
	"rdp", "vnc", "ssh", "smb",
}

// Result is the output of Calculate: a bounded score, its bucketed level,
// and the per-subcomponent breakdown that produced it.
type Result struct {
	Score   int
	Level   string
	Factors map[string]float64
}

// Calculate computes {score, level, factors} from a set of findings. Empty
// findings yield {score:0, level:"none", factors:{}}.
func Calculate(findings []model.Finding) Result {
	if len(findings) == 0 {
		return Result{Score: 0, Level: "none", Factors: map[string]float64{}}
	}

	portRisk := portRisk(findings)
	serviceRisk := serviceRisk(findings)
	vulnRisk := vulnerabilityRisk(findings)
	exposureRisk := exposureRisk(findings)

	total := portRisk*weightOpenPorts +
		serviceRisk*weightServices +
		vulnRisk*weightVulnerabilities +
		exposureRisk*weightExposure

	score := int(math.Round(total))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return Result{
		Score: score,
		Level: level(score),
		Factors: map[string]float64{
			"open_ports":      portRisk,
			"services":        serviceRisk,
			"vulnerabilities": vulnRisk,
			"exposure":        exposureRisk,
		},
	}
}

func portRisk(findings []model.Finding) float64 {
	var score float64
	found := false
	for _, f := range findings {
		if f.FindingType != model.FindingOpenPort || f.Port == nil {
			continue
		}
		found = true
		port := *f.Port
		switch {
		case HighRiskPorts[port]:
			score += 30
		case MediumRiskPorts[port]:
			score += 15
		default:
			score += 5
		}
	}
	if !found {
		return 0
	}
	return math.Min(100, score)
}

func serviceRisk(findings []model.Finding) float64 {
	var score float64
	found := false
	for _, f := range findings {
		if f.FindingType != model.FindingService || f.Service == "" {
			continue
		}
		found = true
		name := strings.ToLower(f.Service)
		if containsAny(name, highRiskServiceSubstrings) {
			score += 20
		} else {
			score += 5
		}
	}
	if !found {
		return 0
	}
	return math.Min(100, score)
}

func vulnerabilityRisk(findings []model.Finding) float64 {
	var score float64
	found := false
	for _, f := range findings {
		if f.FindingType != model.FindingVulnerability {
			continue
		}
		found = true
		switch f.Severity {
		case model.SeverityCritical:
			score += 40
		case model.SeverityHigh:
			score += 25
		case model.SeverityMedium:
			score += 15
		case model.SeverityLow:
			score += 5
		case model.SeverityInfo:
			score += 0
		}
	}
	if !found {
		return 0
	}
	return math.Min(100, score)
}

func exposureRisk(findings []model.Finding) float64 {
	count := 0
	for _, f := range findings {
		if f.FindingType == model.FindingOpenPort {
			count++
		}
	}
	switch {
	case count == 0:
		return 0
	case count <= 3:
		return 20
	case count <= 10:
		return 50
	default:
		return 80
	}
}

func level(score int) string {
	switch {
	case score >= 80:
		return "critical"
	case score >= 60:
		return "high"
	case score >= 40:
		return "medium"
	case score >= 20:
		return "low"
	default:
		return "info"
	}
}

func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
