package riskengine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reconnity/easm-core/internal/model"
	"github.com/reconnity/easm-core/internal/riskengine"
)

func port(n int) *int { return &n }

func TestCalculate_Empty(t *testing.T) {
	r := riskengine.Calculate(nil)
	assert.Equal(t, 0, r.Score)
	assert.Equal(t, "none", r.Level)
	assert.Empty(t, r.Factors)
}

// Scenario 1: ports 22, 80 -> open_ports factor 30, exposure 20, score 11, level info.
func TestCalculate_SimplePortScan(t *testing.T) {
	findings := []model.Finding{
		{FindingType: model.FindingOpenPort, Port: port(22)},
		{FindingType: model.FindingOpenPort, Port: port(80)},
	}
	r := riskengine.Calculate(findings)
	assert.Equal(t, 30.0, r.Factors["open_ports"])
	assert.Equal(t, 20.0, r.Factors["exposure"])
	assert.Equal(t, 11, r.Score)
	assert.Equal(t, "info", r.Level)
}

// Scenario 2: ports 3389, 445 -> open_ports 60, exposure 20, score 20, level low.
func TestCalculate_HighRiskPortScan(t *testing.T) {
	findings := []model.Finding{
		{FindingType: model.FindingOpenPort, Port: port(3389)},
		{FindingType: model.FindingOpenPort, Port: port(445)},
	}
	r := riskengine.Calculate(findings)
	assert.Equal(t, 60.0, r.Factors["open_ports"])
	assert.Equal(t, 20, r.Score)
	assert.Equal(t, "low", r.Level)
}

// Scenario 3: one critical vulnerability -> vulnerabilities 40, score 14, level info.
func TestCalculate_SingleCriticalVuln(t *testing.T) {
	findings := []model.Finding{
		{FindingType: model.FindingVulnerability, Severity: model.SeverityCritical},
	}
	r := riskengine.Calculate(findings)
	assert.Equal(t, 40.0, r.Factors["vulnerabilities"])
	assert.Equal(t, 14, r.Score)
	assert.Equal(t, "info", r.Level)
}

func TestCalculate_ServiceRiskSubstringMatch(t *testing.T) {
	findings := []model.Finding{
		{FindingType: model.FindingService, Service: "OpenSSH"},
		{FindingType: model.FindingService, Service: "http-proxy"},
	}
	r := riskengine.Calculate(findings)
	assert.Equal(t, 25.0, r.Factors["services"]) // 20 (ssh) + 5 (http-proxy)
}

func TestCalculate_ExposureBuckets(t *testing.T) {
	cases := []struct {
		ports    int
		exposure float64
	}{
		{0, 0}, {1, 20}, {3, 20}, {4, 50}, {10, 50}, {11, 80}, {50, 80},
	}
	for _, c := range cases {
		var findings []model.Finding
		for i := 0; i < c.ports; i++ {
			p := 10000 + i
			findings = append(findings, model.Finding{FindingType: model.FindingOpenPort, Port: &p})
		}
		r := riskengine.Calculate(findings)
		assert.Equal(t, c.exposure, r.Factors["exposure"], "ports=%d", c.ports)
	}
}

func TestCalculate_ScoreIsClamped(t *testing.T) {
	var findings []model.Finding
	for i := 0; i < 20; i++ {
		findings = append(findings, model.Finding{FindingType: model.FindingVulnerability, Severity: model.SeverityCritical})
	}
	r := riskengine.Calculate(findings)
	// vulnerabilities factor caps at 100, so the score is round(0.35*100) = 35.
	assert.LessOrEqual(t, r.Score, 100)
	assert.Equal(t, "low", r.Level)
}
