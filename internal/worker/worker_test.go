package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconnity/easm-core/internal/model"
	"github.com/reconnity/easm-core/internal/platform/queue"
)

type fakeRunner struct {
	scanner model.Scanner
	result  model.ScanResults
	err     error
}

func (r *fakeRunner) Scanner() model.Scanner { return r.scanner }

func (r *fakeRunner) Run(ctx context.Context, target string, options json.RawMessage) (model.ScanResults, error) {
	return r.result, r.err
}

func TestWorker_ReportsCompletion(t *testing.T) {
	q := queue.NewMemoryQueue()
	runner := &fakeRunner{
		scanner: model.ScannerPortFast,
		result:  model.ScanResults{OpenPorts: []int{22, 80}},
	}
	w := New(q, runner, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	env, err := queue.Marshal(queue.RunFunction("port-fast"), "scan-1", queue.RunScanArgs{Target: "10.0.0.1"})
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, queue.ScannerQueue("port-fast"), env))

	out, err := q.Consume(ctx, queue.CoreQueue)
	require.NoError(t, err)

	select {
	case delivery := <-out:
		assert.Equal(t, queue.FuncProcessScanResult, delivery.Envelope.Function)
		var args queue.ProcessScanResultArgs
		require.NoError(t, json.Unmarshal(delivery.Envelope.Args, &args))
		assert.Equal(t, "completed", args.Status)
		var results model.ScanResults
		require.NoError(t, json.Unmarshal(args.Results, &results))
		assert.Equal(t, []int{22, 80}, results.OpenPorts)
		assert.Equal(t, "10.0.0.1", results.Target)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for completion report")
	}
}

func TestEffectiveTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Minute, effectiveTimeout(30*time.Minute, 0))
	assert.Equal(t, 45*time.Second, effectiveTimeout(30*time.Minute, 45))
	assert.Equal(t, maxScanTimeout, effectiveTimeout(30*time.Minute, 7200))
}

func TestWorker_ReportsFailureOnRunnerError(t *testing.T) {
	q := queue.NewMemoryQueue()
	runner := &fakeRunner{
		scanner: model.ScannerVuln,
		err:     errors.New("nuclei binary not found"),
	}
	w := New(q, runner, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	env, err := queue.Marshal(queue.RunFunction("vuln"), "scan-2", queue.RunScanArgs{Target: "example.com"})
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, queue.ScannerQueue("vuln"), env))

	out, err := q.Consume(ctx, queue.CoreQueue)
	require.NoError(t, err)

	select {
	case delivery := <-out:
		var args queue.ProcessScanResultArgs
		require.NoError(t, json.Unmarshal(delivery.Envelope.Args, &args))
		assert.Equal(t, "failed", args.Status)
		assert.Contains(t, args.Error, "nuclei binary not found")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for failure report")
	}
}
