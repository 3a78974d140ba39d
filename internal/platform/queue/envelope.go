// Package queue implements the Job Queue component (spec §4.6): named
// queues with at-least-once delivery over RabbitMQ, carrying the wire
// envelopes defined in spec §6.3.
package queue

import "encoding/json"

// Function names recognized by the pipeline's three stages.
const (
	FuncScanAsset          = "scan_asset"
	FuncProcessScanResult  = "process_scan_result"
	runFuncPrefix          = "run_"
)

// RunFunction returns the "run_<scanner>" function name for scanner.
func RunFunction(scanner string) string { return runFuncPrefix + scanner }

// CoreQueue and the per-scanner queue name prefix, per spec §2 ("core,
// scanner-<type>").
const (
	CoreQueue          = "core"
	scannerQueuePrefix = "scanner-"
)

// ScannerQueue returns the "scanner-<type>" queue name for scanner.
func ScannerQueue(scanner string) string { return scannerQueuePrefix + scanner }

// Envelope is the transport-level job passed through the Job Queue.
type Envelope struct {
	Function string          `json:"function"`
	ScanID   string          `json:"scan_id"`
	Args     json.RawMessage `json:"args"`
}

// ScanAssetArgs is the payload of a scan_asset job (Ingress -> Dispatcher).
type ScanAssetArgs struct {
	Target  string          `json:"target"`
	Scanner string          `json:"scanner"`
	Options json.RawMessage `json:"options,omitempty"`
}

// RunScanArgs is the payload of a run_<scanner> job (Dispatcher -> Worker).
// TimeoutSeconds carries the options.timeout override from spec §4.5 step
// 4 ("per-scanner default, overridable by options.timeout"); zero means no
// override, so the Worker falls back to its configured per-scanner default.
type RunScanArgs struct {
	Target         string          `json:"target"`
	Options        json.RawMessage `json:"options,omitempty"`
	TimeoutSeconds int             `json:"timeout_seconds,omitempty"`
}

// ProcessScanResultArgs is the payload of a process_scan_result job
// (Worker -> Result Processor).
type ProcessScanResultArgs struct {
	Status  string          `json:"status"`
	Results json.RawMessage `json:"results,omitempty"`
	Error   string          `json:"error,omitempty"`
	Scanner string          `json:"scanner"`
}

// Marshal builds an Envelope for function/scanID carrying args as its
// serialized payload.
func Marshal(function, scanID string, args interface{}) (Envelope, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Function: function, ScanID: scanID, Args: raw}, nil
}
