package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/richxcame/taxi-eta/internal/eta"
)

func TestTrainWritesScannableArtifact(t *testing.T) {
	root := t.TempDir()
	trainer := NewTrainer(root, "1", "models", 200, zap.NewNop())

	runID, err := trainer.Train()
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	scanner := eta.NewScanner(root, "1", "models", zap.NewNop())
	model, err := scanner.SelectBest()
	require.NoError(t, err)
	assert.Equal(t, runID, model.RunID)
	assert.Equal(t, "minutes", model.Unit)
	assert.NotEmpty(t, model.FeatureOrder)
}

func TestTrainDefaultsSeedSamplesWhenNonPositive(t *testing.T) {
	root := t.TempDir()
	trainer := NewTrainer(root, "1", "models", 0, zap.NewNop())
	assert.Equal(t, 500, trainer.SeedSamples)

	_, err := trainer.Train()
	require.NoError(t, err)
}

func TestTrainProducesFiniteRMSE(t *testing.T) {
	root := t.TempDir()
	trainer := NewTrainer(root, "1", "models", 50, zap.NewNop())
	rmse := trainer.estimateRMSE()
	assert.GreaterOrEqual(t, rmse, 0.0)
}
