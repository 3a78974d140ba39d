package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/reconnity/easm-core/internal/model"
	"github.com/reconnity/easm-core/internal/scanoptions"
)

// VulnRunner shells out to nuclei, grounded on
// original_source/scanners/scanner-nuclei's build_nuclei_command/
// parse_nuclei_output, for the template-driven vulnerability scanner tag.
type VulnRunner struct {
	BinaryPath string
}

func (r *VulnRunner) Scanner() model.Scanner { return model.ScannerVuln }

func (r *VulnRunner) Run(ctx context.Context, target string, rawOptions json.RawMessage) (model.ScanResults, error) {
	var opts scanoptions.VulnOptions
	if err := json.Unmarshal(rawOptions, &opts); err != nil {
		return model.ScanResults{}, fmt.Errorf("decode vuln options: %w", err)
	}

	// severity_min selects that level and every level above it.
	severity := "critical,high,medium"
	if opts.SeverityMin != "" {
		severity = opts.SeverityMin
		levels := []string{"critical", "high", "medium", "low", "info"}
		for i, l := range levels {
			if l == opts.SeverityMin {
				severity = strings.Join(levels[:i+1], ",")
			}
		}
	}
	templates := opts.Templates
	if len(templates) == 0 {
		templates = []string{"cves"}
	}

	bin := r.BinaryPath
	if bin == "" {
		bin = "nuclei"
	}

	args := []string{
		"-target", target,
		"-jsonl", "-silent",
		"-rate-limit", "150",
		"-severity", severity,
		"-t", strings.Join(templates, ","),
		"-c", "25",
		"-retries", "1",
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, bin, args...)
	out, err := cmd.Output()
	duration := time.Since(start).Seconds()

	if ctx.Err() != nil {
		return model.ScanResults{}, fmt.Errorf("vuln scan timed out: %w", ctx.Err())
	}
	// nuclei can exit non-zero while still emitting usable stdout; only
	// treat it as a hard failure when there is no output at all, mirroring
	// the original run_nuclei_scan's "returncode == 0 or stdout" check.
	if err != nil {
		if len(out) == 0 {
			if exitErr, ok := err.(*exec.ExitError); ok {
				return model.ScanResults{}, fmt.Errorf("nuclei failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
			}
			return model.ScanResults{}, fmt.Errorf("run nuclei: %w", err)
		}
	}

	return parseNucleiOutput(out, duration), nil
}

type nucleiFinding struct {
	TemplateID string `json:"template-id"`
	Info       struct {
		Name        string `json:"name"`
		Severity    string `json:"severity"`
		Description string `json:"description"`
	} `json:"info"`
	MatchedAt string `json:"matched-at"`
}

// parseNucleiOutput mirrors parse_nuclei_output: one JSON object per line,
// malformed lines are counted and skipped rather than failing the scan.
func parseNucleiOutput(raw []byte, duration float64) model.ScanResults {
	results := model.ScanResults{
		ScanDuration:    duration,
		OpenPorts:       []int{},
		Services:        map[string]model.ServiceInfo{},
		Vulnerabilities: []model.Vulnerability{},
		Stats: map[string]interface{}{
			"hosts_found":     0,
			"total_findings":  0,
			"processed_lines": 0,
			"error_count":     0,
		},
	}

	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return results
	}

	scanner := bufio.NewScanner(strings.NewReader(trimmed))
	var processedLines, errorCount int
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		processedLines++

		var f nucleiFinding
		if err := json.Unmarshal([]byte(line), &f); err != nil {
			errorCount++
			continue
		}

		name := f.Info.Name
		if name == "" {
			name = "Unknown Vulnerability"
		}
		severity := f.Info.Severity
		if severity == "" {
			severity = "unknown"
		}
		matchedAt := f.MatchedAt
		if matchedAt == "" {
			matchedAt = results.Target
		}

		results.Vulnerabilities = append(results.Vulnerabilities, model.Vulnerability{
			ID:          orUnknownID(f.TemplateID),
			Name:        name,
			Severity:    severity,
			Description: orDefault(f.Info.Description, "No description"),
			URL:         matchedAt,
		})
	}

	results.Stats["hosts_found"] = 1
	results.Stats["total_findings"] = len(results.Vulnerabilities)
	results.Stats["processed_lines"] = processedLines
	results.Stats["error_count"] = errorCount

	return results
}

func orUnknownID(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
