package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/reconnity/easm-core/internal/model"
	"github.com/reconnity/easm-core/internal/scanoptions"
)

// PortFastRunner shells out to masscan, grounded on
// original_source/scanners/scanner-masscan's build_masscan_command/
// parse_masscan_output, for the fast/wide port-sweep scanner tag.
type PortFastRunner struct {
	// BinaryPath overrides the masscan executable name; defaults to
	// "masscan" on $PATH when empty.
	BinaryPath string
}

func (r *PortFastRunner) Scanner() model.Scanner { return model.ScannerPortFast }

func (r *PortFastRunner) Run(ctx context.Context, target string, rawOptions json.RawMessage) (model.ScanResults, error) {
	var opts scanoptions.PortFastOptions
	if err := json.Unmarshal(rawOptions, &opts); err != nil {
		return model.ScanResults{}, fmt.Errorf("decode port-fast options: %w", err)
	}

	ports := opts.Ports
	if ports == "" {
		ports = "1-10000"
	}
	rate := opts.RateLimit
	if rate == 0 {
		rate = 1000
	}

	bin := r.BinaryPath
	if bin == "" {
		bin = "masscan"
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, bin,
		target,
		"-p", ports,
		"--rate", strconv.Itoa(rate),
		"--output-format", "json",
		"--output-filename", "-",
	)
	out, err := cmd.Output()
	duration := time.Since(start).Seconds()

	if ctx.Err() != nil {
		return model.ScanResults{}, fmt.Errorf("port-fast scan timed out: %w", ctx.Err())
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return model.ScanResults{}, fmt.Errorf("masscan failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return model.ScanResults{}, fmt.Errorf("run masscan: %w", err)
	}

	return parseMasscanOutput(out, duration), nil
}

type masscanLine struct {
	Ports []struct {
		Port   int    `json:"port"`
		Proto  string `json:"proto"`
		Status string `json:"status"`
	} `json:"ports"`
}

// parseMasscanOutput mirrors parse_masscan_output: JSON-lines, one finding
// per open port, services identified by well-known port number. On
// unparseable input the raw text is preserved rather than discarding the
// scan entirely (spec §4.5 step 7).
func parseMasscanOutput(raw []byte, duration float64) model.ScanResults {
	results := model.ScanResults{
		ScanDuration: duration,
		OpenPorts:    []int{},
		Services:     map[string]model.ServiceInfo{},
	}

	if len(strings.TrimSpace(string(raw))) == 0 {
		return results
	}

	scanner := bufio.NewScanner(strings.NewReader(string(raw)))
	var totalLines, decodedLines int
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		totalLines++
		var entry masscanLine
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		decodedLines++
		if len(entry.Ports) == 0 {
			continue
		}
		port := entry.Ports[0]
		if port.Status != "open" {
			continue
		}
		results.OpenPorts = append(results.OpenPorts, port.Port)
		results.Services[strconv.Itoa(port.Port)] = model.ServiceInfo{
			Name:     identifyServiceByPort(port.Port),
			Protocol: port.Proto,
			State:    "open",
		}
	}

	if totalLines > 0 && decodedLines == 0 {
		results.RawOutput = string(raw)
		results.ParseError = "no masscan JSON lines could be decoded"
	}

	return results
}

var wellKnownPorts = map[int]string{
	21: "ftp", 22: "ssh", 23: "telnet", 25: "smtp", 53: "dns",
	80: "http", 110: "pop3", 143: "imap", 443: "https", 465: "smtps",
	587: "smtp", 993: "imaps", 995: "pop3s", 3306: "mysql", 3389: "rdp",
	5432: "postgresql", 8080: "http-proxy", 8443: "https-alt",
}

func identifyServiceByPort(port int) string {
	if name, ok := wellKnownPorts[port]; ok {
		return name
	}
	return "unknown"
}
