// Package scanoptions implements the closed, per-scanner option schemas
// from spec §6.4 as a tagged union: Ingress decodes the request's raw
// `options` JSON against the schema matching `scanner`, rejecting unknown
// keys, before handing an opaque validated payload down to the Dispatcher.
package scanoptions

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/reconnity/easm-core/internal/model"
)

// PortFastOptions is the option schema for the port-fast scanner.
type PortFastOptions struct {
	Ports     string `json:"ports"`
	RateLimit int    `json:"rate_limit,omitempty"`
	Timeout   int    `json:"timeout,omitempty"`
}

// PortDeepOptions is the option schema for the port-deep scanner.
type PortDeepOptions struct {
	Ports          string `json:"ports"`
	TimingTemplate string `json:"timing_template,omitempty"`
	Timeout        int    `json:"timeout,omitempty"`
}

// VulnOptions is the option schema for the vuln scanner.
type VulnOptions struct {
	Templates   []string `json:"templates,omitempty"`
	SeverityMin string   `json:"severity_min,omitempty"`
	Timeout     int      `json:"timeout,omitempty"`
}

// Validate decodes raw against the schema for scanner, rejecting unknown
// keys, and returns the re-marshaled canonical payload plus the options'
// own timeout override (0 if unset). An empty raw ("" or "null") is treated
// as an empty options object.
func Validate(scanner model.Scanner, raw []byte) (json.RawMessage, int, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	var (
		timeout int
		out     interface{}
	)

	dec := func(v interface{}) error {
		d := json.NewDecoder(bytes.NewReader(raw))
		d.DisallowUnknownFields()
		return d.Decode(v)
	}

	switch scanner {
	case model.ScannerPortFast:
		var o PortFastOptions
		if err := dec(&o); err != nil {
			return nil, 0, fmt.Errorf("invalid port-fast options: %w", err)
		}
		timeout, out = o.Timeout, o
	case model.ScannerPortDeep:
		var o PortDeepOptions
		if err := dec(&o); err != nil {
			return nil, 0, fmt.Errorf("invalid port-deep options: %w", err)
		}
		timeout, out = o.Timeout, o
	case model.ScannerVuln:
		var o VulnOptions
		if err := dec(&o); err != nil {
			return nil, 0, fmt.Errorf("invalid vuln options: %w", err)
		}
		timeout, out = o.Timeout, o
	default:
		return nil, 0, fmt.Errorf("unsupported scanner: %s", scanner)
	}

	canonical, err := json.Marshal(out)
	if err != nil {
		return nil, 0, err
	}
	return canonical, timeout, nil
}
