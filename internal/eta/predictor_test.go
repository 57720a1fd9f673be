package eta

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearPredictorPredict(t *testing.T) {
	p := &linearPredictor{Weights: []float64{2, 0, 0, 0, 0, 0, 0, 0}, Intercept: 1}
	value, err := p.Predict([]float64{10, 1, 1, 17, 0, 3, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, 21.0, value)
}

func TestLinearPredictorRejectsMismatchedFeatureCount(t *testing.T) {
	p := &linearPredictor{Weights: []float64{1, 1}, Intercept: 0}
	_, err := p.Predict([]float64{1, 2, 3})
	assert.Error(t, err)
}

func TestLoadJSONPredictorRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "predictor.json")
	data, err := json.Marshal(linearPredictor{Weights: []float64{1, 2, 3}, Intercept: 0.5})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	predictor, err := loadPredictor(path)
	require.NoError(t, err)

	value, err := predictor.Predict([]float64{1, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, 6.5, value)
}

func TestLoadGobPredictorRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "predictor.gob")
	encoded, err := encodeGobPredictor(&linearPredictor{Weights: []float64{1, 1}, Intercept: 0})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, encoded, 0o644))

	predictor, err := loadPredictor(path)
	require.NoError(t, err)

	value, err := predictor.Predict([]float64{4, 6})
	require.NoError(t, err)
	assert.Equal(t, 10.0, value)
}

func TestLoadPredictorRejectsUnrecognizedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "predictor.onnx")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	_, err := loadPredictor(path)
	assert.Error(t, err)
}

func TestLoadJSONPredictorRejectsEmptyWeights(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "predictor.json")
	data, err := json.Marshal(linearPredictor{Weights: nil, Intercept: 1})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = loadPredictor(path)
	assert.Error(t, err)
}
