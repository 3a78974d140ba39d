package dispatcher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconnity/easm-core/internal/platform/queue"
)

func TestDispatcher_RoutesSupportedScanner(t *testing.T) {
	q := queue.NewMemoryQueue()
	d := New(q, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	args, err := json.Marshal(queue.ScanAssetArgs{Target: "example.com", Scanner: "port-fast"})
	require.NoError(t, err)
	env := queue.Envelope{Function: queue.FuncScanAsset, ScanID: "scan-1", Args: args}

	require.NoError(t, q.Enqueue(ctx, queue.CoreQueue, env))

	out, err := q.Consume(ctx, queue.ScannerQueue("port-fast"))
	require.NoError(t, err)

	select {
	case delivery := <-out:
		assert.Equal(t, queue.RunFunction("port-fast"), delivery.Envelope.Function)
		assert.Equal(t, "scan-1", delivery.Envelope.ScanID)
		var runArgs queue.RunScanArgs
		require.NoError(t, json.Unmarshal(delivery.Envelope.Args, &runArgs))
		assert.Equal(t, "example.com", runArgs.Target)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for routed job")
	}
}

func TestDispatcher_ForwardsOptionsTimeoutOverride(t *testing.T) {
	q := queue.NewMemoryQueue()
	d := New(q, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	args, err := json.Marshal(queue.ScanAssetArgs{
		Target:  "example.com",
		Scanner: "port-fast",
		Options: json.RawMessage(`{"ports":"1-1000","timeout":120}`),
	})
	require.NoError(t, err)
	env := queue.Envelope{Function: queue.FuncScanAsset, ScanID: "scan-timeout", Args: args}
	require.NoError(t, q.Enqueue(ctx, queue.CoreQueue, env))

	out, err := q.Consume(ctx, queue.ScannerQueue("port-fast"))
	require.NoError(t, err)

	select {
	case delivery := <-out:
		var runArgs queue.RunScanArgs
		require.NoError(t, json.Unmarshal(delivery.Envelope.Args, &runArgs))
		assert.Equal(t, 120, runArgs.TimeoutSeconds)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for routed job")
	}
}

func TestDispatcher_UnsupportedScannerFailsBack(t *testing.T) {
	q := queue.NewMemoryQueue()
	d := New(q, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	args, _ := json.Marshal(queue.ScanAssetArgs{Target: "example.com", Scanner: "nmap-udp"})
	env := queue.Envelope{Function: queue.FuncScanAsset, ScanID: "scan-2", Args: args}
	require.NoError(t, q.Enqueue(ctx, queue.CoreQueue, env))

	out, err := q.Consume(ctx, queue.CoreQueue)
	require.NoError(t, err)

	select {
	case delivery := <-out:
		assert.Equal(t, queue.FuncProcessScanResult, delivery.Envelope.Function)
		var failArgs queue.ProcessScanResultArgs
		require.NoError(t, json.Unmarshal(delivery.Envelope.Args, &failArgs))
		assert.Equal(t, "failed", failArgs.Status)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for failure job")
	}
}

func TestDispatcher_UnknownFunctionIsAcked(t *testing.T) {
	q := queue.NewMemoryQueue()
	d := New(q, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	env := queue.Envelope{Function: "some_other_job", ScanID: "scan-3"}
	require.NoError(t, q.Enqueue(ctx, queue.CoreQueue, env))

	// No scanner queue should receive anything; give the dispatcher a beat
	// to process, then assert the scanner queues stay empty.
	time.Sleep(50 * time.Millisecond)
	out, err := q.Consume(ctx, queue.ScannerQueue("port-fast"))
	require.NoError(t, err)
	select {
	case <-out:
		t.Fatal("unexpected job routed for unknown function")
	default:
	}

	var acked bool
	d.handle(ctx, queue.Delivery{
		Envelope: env,
		Ack:      func() { acked = true },
		Nack:     func(bool) { t.Fatal("unknown function must not be nacked") },
	})
	assert.True(t, acked, "unknown function must be acked")
}
