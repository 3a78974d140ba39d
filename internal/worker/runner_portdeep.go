package worker

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/reconnity/easm-core/internal/model"
	"github.com/reconnity/easm-core/internal/scanoptions"
)

// PortDeepRunner shells out to nmap, grounded on
// original_source/scanners/scanner-nmap's build_nmap_command/
// parse_nmap_output, for the slower service/OS-fingerprinting scanner tag.
type PortDeepRunner struct {
	BinaryPath string
}

func (r *PortDeepRunner) Scanner() model.Scanner { return model.ScannerPortDeep }

func (r *PortDeepRunner) Run(ctx context.Context, target string, rawOptions json.RawMessage) (model.ScanResults, error) {
	var opts scanoptions.PortDeepOptions
	if err := json.Unmarshal(rawOptions, &opts); err != nil {
		return model.ScanResults{}, fmt.Errorf("decode port-deep options: %w", err)
	}

	ports := opts.Ports
	if ports == "" {
		ports = "1-10000"
	}
	timing := opts.TimingTemplate
	if timing == "" {
		timing = "4"
	}

	bin := r.BinaryPath
	if bin == "" {
		bin = "nmap"
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, bin,
		"-sS", "-O", "-sV", "-sC", "--open",
		"-oX", "-",
		"-p", ports,
		"-T", timing,
		target,
	)
	out, err := cmd.Output()
	duration := time.Since(start).Seconds()

	if ctx.Err() != nil {
		return model.ScanResults{}, fmt.Errorf("port-deep scan timed out: %w", ctx.Err())
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return model.ScanResults{}, fmt.Errorf("nmap failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return model.ScanResults{}, fmt.Errorf("run nmap: %w", err)
	}

	return parseNmapXML(out, duration), nil
}

type nmapRun struct {
	Hosts []struct {
		Status struct {
			State string `xml:"state,attr"`
		} `xml:"status"`
		Ports struct {
			Ports []struct {
				PortID   string `xml:"portid,attr"`
				Protocol string `xml:"protocol,attr"`
				State    struct {
					State string `xml:"state,attr"`
				} `xml:"state"`
				Service struct {
					Name    string `xml:"name,attr"`
					Product string `xml:"product,attr"`
					Version string `xml:"version,attr"`
				} `xml:"service"`
			} `xml:"port"`
		} `xml:"ports"`
		OS struct {
			Matches []struct {
				Name     string `xml:"name,attr"`
				Accuracy string `xml:"accuracy,attr"`
			} `xml:"osmatch"`
		} `xml:"os"`
	} `xml:"host"`
}

// parseNmapXML mirrors parse_nmap_output: walks <host> elements, collects
// open ports/services, and the first OS match with accuracy >= 80. Parse
// failures degrade to raw_output/parse_error per spec §4.5 step 7.
func parseNmapXML(raw []byte, duration float64) model.ScanResults {
	results := model.ScanResults{
		ScanDuration: duration,
		OpenPorts:    []int{},
		Services:     map[string]model.ServiceInfo{},
	}

	var run nmapRun
	if err := xml.Unmarshal(raw, &run); err != nil {
		results.RawOutput = string(raw)
		results.ParseError = err.Error()
		return results
	}

	for _, host := range run.Hosts {
		if host.Status.State != "up" {
			continue
		}
		for _, port := range host.Ports.Ports {
			if port.State.State != "open" {
				continue
			}
			portNum, err := strconv.Atoi(port.PortID)
			if err != nil {
				continue
			}
			results.OpenPorts = append(results.OpenPorts, portNum)
			results.Services[port.PortID] = model.ServiceInfo{
				Name:     orUnknown(port.Service.Name),
				Product:  port.Service.Product,
				Version:  port.Service.Version,
				Protocol: port.Protocol,
			}
		}

		for _, match := range host.OS.Matches {
			accuracy, err := strconv.Atoi(match.Accuracy)
			if err != nil || accuracy < 80 {
				continue
			}
			results.OSInfo = &model.OSInfo{Name: match.Name, Accuracy: accuracy}
			break
		}
	}

	return results
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
