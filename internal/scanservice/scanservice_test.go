package scanservice

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/reconnity/easm-core/internal/apperr"
	"github.com/reconnity/easm-core/internal/model"
)

// newTestDB opens an in-memory SQLite database preserving GORM's query
// semantics (locking clauses, OnConflict upserts) without requiring a real
// Postgres instance — the same tradeoff other_examples' Go test suites make
// for repository-layer tests.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(&model.Scan{}, &model.Finding{}, &model.Asset{}, &model.RiskScore{}))
	return database
}

func TestCreateScan_RejectsInvalidTarget(t *testing.T) {
	svc := New(newTestDB(t))
	_, err := svc.CreateScan(context.Background(), "not a target!!", model.ScannerPortFast, nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.InvalidTarget))
}

func TestCreateScan_RejectsUnsupportedScanner(t *testing.T) {
	svc := New(newTestDB(t))
	_, err := svc.CreateScan(context.Background(), "example.com", model.Scanner("port-ludicrous"), nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.UnsupportedScanner))
}

func TestCreateScan_PersistsQueuedScan(t *testing.T) {
	svc := New(newTestDB(t))
	result, err := svc.CreateScan(context.Background(), "example.com", model.ScannerPortFast, nil)
	require.NoError(t, err)
	assert.Equal(t, model.ScanQueued, result.Status)

	view, err := svc.GetScan(context.Background(), result.ScanID)
	require.NoError(t, err)
	assert.Equal(t, "example.com", view.Target)
	assert.Equal(t, model.ScanQueued, view.Status)
	assert.Equal(t, 0, view.Progress)
}

func TestGetScan_NotFound(t *testing.T) {
	svc := New(newTestDB(t))
	_, err := svc.GetScan(context.Background(), uuid.Must(uuid.NewV7()))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestCompleteScan_DerivesFindingsAssetAndRiskScore(t *testing.T) {
	svc := New(newTestDB(t))
	created, err := svc.CreateScan(context.Background(), "10.0.0.5", model.ScannerPortFast, nil)
	require.NoError(t, err)

	results, err := json.Marshal(map[string]interface{}{
		"scanner": "masscan",
		"target":  "10.0.0.5",
		"open_ports": []int{22, 3389},
		"services": map[string]interface{}{
			"22":   map[string]string{"name": "ssh"},
			"3389": map[string]string{"name": "rdp"},
		},
	})
	require.NoError(t, err)

	require.NoError(t, svc.CompleteScan(context.Background(), created.ScanID, results))

	view, err := svc.GetScan(context.Background(), created.ScanID)
	require.NoError(t, err)
	assert.Equal(t, model.ScanCompleted, view.Status)
	assert.Equal(t, 100, view.Progress)
	assert.Len(t, view.Findings, 2)
	require.NotNil(t, view.RiskScore)
	assert.Greater(t, view.RiskScore.Score, 0)

	var asset model.Asset
	require.NoError(t, svc.db.Where("target = ?", "10.0.0.5").First(&asset).Error)
	assert.Equal(t, model.AssetIP, asset.AssetType)
}

func TestCompleteScan_IsIdempotentOnRedelivery(t *testing.T) {
	svc := New(newTestDB(t))
	created, err := svc.CreateScan(context.Background(), "10.0.0.6", model.ScannerPortFast, nil)
	require.NoError(t, err)

	results, _ := json.Marshal(map[string]interface{}{
		"target":     "10.0.0.6",
		"open_ports": []int{80},
		"services":   map[string]interface{}{"80": map[string]string{"name": "http"}},
	})

	require.NoError(t, svc.CompleteScan(context.Background(), created.ScanID, results))
	require.NoError(t, svc.CompleteScan(context.Background(), created.ScanID, results))

	view, err := svc.GetScan(context.Background(), created.ScanID)
	require.NoError(t, err)
	assert.Len(t, view.Findings, 1, "redelivery must not duplicate findings")
}

func TestFailScan_SetsErrorMessageWithoutSideEffects(t *testing.T) {
	svc := New(newTestDB(t))
	created, err := svc.CreateScan(context.Background(), "example.org", model.ScannerVuln, nil)
	require.NoError(t, err)

	require.NoError(t, svc.FailScan(context.Background(), created.ScanID, "nuclei timed out"))

	view, err := svc.GetScan(context.Background(), created.ScanID)
	require.NoError(t, err)
	assert.Equal(t, model.ScanFailed, view.Status)
	assert.Equal(t, "nuclei timed out", view.ErrorMessage)
	assert.Empty(t, view.Findings)
	assert.Nil(t, view.RiskScore)
}

func TestFailScan_IsIdempotentOnRedelivery(t *testing.T) {
	svc := New(newTestDB(t))
	created, err := svc.CreateScan(context.Background(), "example.net", model.ScannerVuln, nil)
	require.NoError(t, err)

	require.NoError(t, svc.FailScan(context.Background(), created.ScanID, "first error"))
	require.NoError(t, svc.FailScan(context.Background(), created.ScanID, "second error"))

	view, err := svc.GetScan(context.Background(), created.ScanID)
	require.NoError(t, err)
	assert.Equal(t, "first error", view.ErrorMessage, "terminal scan must not be re-mutated on redelivery")
}
