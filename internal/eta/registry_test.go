package eta

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeArtifact(t *testing.T, root, experimentID, runID string, meta modelMetadata, writePredictor bool) {
	t.Helper()
	dir := filepath.Join(root, experimentID, runID, "artifacts", "models")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	metaBytes, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.json"), metaBytes, 0o644))

	if writePredictor {
		data, err := json.Marshal(linearPredictor{Weights: []float64{1, 0, 0, 0, 0, 0, 0, 0}, Intercept: 0})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "predictor.json"), data, 0o644))
	}
}

// TestSelectBestPicksLowestRMSEAmongValidCandidates mirrors §8 scenario 5:
// three candidates A/B/C where C is corrupt (no predictor blob) — the
// scanner must select A, the valid candidate with the lowest RMSE.
func TestSelectBestPicksLowestRMSEAmongValidCandidates(t *testing.T) {
	root := t.TempDir()
	now := time.Now().UTC().Truncate(time.Second)

	writeArtifact(t, root, "1", "run-a", modelMetadata{
		RMSE: 3.2, TrainedAt: now.Format(time.RFC3339), FeatureOrder: []string{"distance_km"}, Unit: "minutes",
	}, true)
	writeArtifact(t, root, "1", "run-b", modelMetadata{
		RMSE: 5.1, TrainedAt: now.Format(time.RFC3339), FeatureOrder: []string{"distance_km"}, Unit: "minutes",
	}, true)
	writeArtifact(t, root, "1", "run-c", modelMetadata{
		RMSE: 1.0, TrainedAt: now.Format(time.RFC3339), FeatureOrder: []string{"distance_km"}, Unit: "minutes",
	}, false) // corrupt: no predictor blob

	scanner := NewScanner(root, "1", "models", zap.NewNop())
	model, err := scanner.SelectBest()
	require.NoError(t, err)
	assert.Equal(t, "run-a", model.RunID)
}

func TestScanRanksByRMSEThenRecencyThenRunID(t *testing.T) {
	root := t.TempDir()
	older := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Second)
	newer := time.Now().UTC().Truncate(time.Second)

	writeArtifact(t, root, "1", "run-old", modelMetadata{RMSE: 2.0, TrainedAt: older.Format(time.RFC3339), Unit: "minutes"}, true)
	writeArtifact(t, root, "1", "run-new", modelMetadata{RMSE: 2.0, TrainedAt: newer.Format(time.RFC3339), Unit: "minutes"}, true)

	scanner := NewScanner(root, "1", "models", zap.NewNop())
	result, err := scanner.Scan()
	require.NoError(t, err)
	require.Len(t, result.Candidates, 2)
	assert.Equal(t, "run-new", result.Candidates[0].RunID)

	// Same RMSE and trained_at as run-new: run_id breaks the tie. A lower
	// RMSE outranks recency.
	writeArtifact(t, root, "1", "run-aaa", modelMetadata{RMSE: 2.0, TrainedAt: newer.Format(time.RFC3339), Unit: "minutes"}, true)
	writeArtifact(t, root, "1", "run-zzz-best", modelMetadata{RMSE: 1.0, TrainedAt: older.Format(time.RFC3339), Unit: "minutes"}, true)

	result, err = scanner.Scan()
	require.NoError(t, err)
	var order []string
	for _, c := range result.Candidates {
		order = append(order, c.RunID)
	}
	assert.Equal(t, []string{"run-zzz-best", "run-aaa", "run-new", "run-old"}, order)
}

func TestScanIgnoresIncompleteRunsWithoutError(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "1", "run-incomplete"), 0o755))

	scanner := NewScanner(root, "1", "models", zap.NewNop())
	result, err := scanner.Scan()
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
}

// TestSelectBestDemotesCandidateWithCorruptPredictorBlob mirrors §4.2's
// "deserialization failures demote the candidate" invariant for a run whose
// predictor.json exists and passes probe (metadata parses, file present) but
// whose bytes aren't a valid predictor — distinct from registry_test.go's
// "corrupt" scenario above, which is actually a missing file rejected by
// probe before SelectBest's deserialize loop ever runs.
func TestSelectBestDemotesCandidateWithCorruptPredictorBlob(t *testing.T) {
	root := t.TempDir()
	now := time.Now().UTC().Truncate(time.Second)

	writeArtifact(t, root, "1", "run-valid", modelMetadata{
		RMSE: 5.1, TrainedAt: now.Format(time.RFC3339), FeatureOrder: []string{"distance_km"}, Unit: "minutes",
	}, true)

	dir := filepath.Join(root, "1", "run-corrupt-blob", "artifacts", "models")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	metaBytes, err := json.Marshal(modelMetadata{
		RMSE: 1.0, TrainedAt: now.Format(time.RFC3339), FeatureOrder: []string{"distance_km"}, Unit: "minutes",
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.json"), metaBytes, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "predictor.json"), []byte("not valid json at all"), 0o644))

	scanner := NewScanner(root, "1", "models", zap.NewNop())

	scanResult, err := scanner.Scan()
	require.NoError(t, err)
	require.Len(t, scanResult.Candidates, 2, "corrupt-blob candidate must still pass probe/Scan")
	assert.Equal(t, "run-corrupt-blob", scanResult.Candidates[0].RunID, "lower RMSE ranks first despite being undeserializable")

	model, err := scanner.SelectBest()
	require.NoError(t, err)
	assert.Equal(t, "run-valid", model.RunID, "SelectBest must demote the corrupt candidate and fall through to the next")
}

// TestScanEmptyRegistryReturnsEmptyResult mirrors §8 scenario 4: an absent
// or empty registry root produces an empty scan, not an error.
func TestScanEmptyRegistryReturnsEmptyResult(t *testing.T) {
	root := filepath.Join(t.TempDir(), "does-not-exist")
	scanner := NewScanner(root, "1", "models", zap.NewNop())

	result, err := scanner.Scan()
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)

	_, err = scanner.SelectBest()
	var noModel *ErrNoModelAvailable
	require.ErrorAs(t, err, &noModel)
}

func TestProbeRejectsUnparseableTrainedAt(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "1", "run-bad-date", "artifacts", "models")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.json"), []byte(`{"rmse":1.0,"trained_at":"not-a-date","unit":"minutes"}`), 0o644))
	// A predictor blob is present, so only the bad trained_at can cause rejection.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "predictor.json"), []byte(`{"weights":[1,0,0,0,0,0,0,0],"intercept":0}`), 0o644))

	scanner := NewScanner(root, "1", "models", zap.NewNop())
	result, err := scanner.Scan()
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
}
