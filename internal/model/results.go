package model

import "encoding/json"

// ScanResults is the normalized result shape emitted by every Scanner
// Worker (spec §4.5 step 5) and consumed by the Result Processor to derive
// Findings.
type ScanResults struct {
	Scanner         string                 `json:"scanner"`
	Target          string                 `json:"target"`
	ScanID          string                 `json:"scan_id"`
	ScanDuration    float64                `json:"scan_duration,omitempty"`
	Timestamp       string                 `json:"timestamp,omitempty"`
	OpenPorts       []int                  `json:"open_ports"`
	Services        map[string]ServiceInfo `json:"services"`
	Vulnerabilities []Vulnerability        `json:"vulnerabilities,omitempty"`
	OSInfo          *OSInfo                `json:"os_info,omitempty"`
	Stats           map[string]interface{} `json:"stats,omitempty"`
	RawOutput       string                 `json:"raw_output,omitempty"`
	ParseError      string                 `json:"parse_error,omitempty"`
}

// ServiceInfo describes the service detected on one open port. Workers may
// emit a bare string name instead of this object; callers unmarshal
// leniently (see ServiceInfo.UnmarshalJSON).
type ServiceInfo struct {
	Name     string `json:"name"`
	Product  string `json:"product,omitempty"`
	Version  string `json:"version,omitempty"`
	Protocol string `json:"protocol,omitempty"`
	State    string `json:"state,omitempty"`
}

// Vulnerability is one vulnerability finding reported by a vulnerability
// scanner worker.
type Vulnerability struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Severity    string `json:"severity"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	Port        *int   `json:"port,omitempty"`
	Details     string `json:"details,omitempty"`
}

// UnmarshalJSON accepts both the normalized {"name": "ssh", ...} object and
// a bare string ("ssh"), matching the original scanner workers' tolerance
// for either shape.
func (s *ServiceInfo) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		s.Name = name
		return nil
	}
	type alias ServiceInfo
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = ServiceInfo(a)
	return nil
}

// OSInfo is the optional OS fingerprint a port scanner may report.
type OSInfo struct {
	Name     string `json:"name"`
	Accuracy int    `json:"accuracy"`
}
