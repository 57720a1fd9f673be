// Package bootstrap seeds the model registry the first time the service
// starts against an empty <root>/<experiment_id>/ (§4.5, §8 scenario 4:
// "empty registry -> bootstrap -> healthy"). It writes a trivial linear
// model with fixed, hand-picked weights — there is no real training data
// store in this deployment — scores it against synthesized samples for its
// reported RMSE, and writes it in the same on-disk shape the scanner
// expects, grounded on the teacher's TrainModel flow in
// internal/mleta/service.go (fetch samples, accumulate error, log, persist).
package bootstrap

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/richxcame/taxi-eta/internal/eta"
)

// seedWeights is a fixed, hand-picked linear approximation over the 8
// ordered features (§3 FeatureVector): dominated by distance, a small
// rush-hour penalty, everything else near zero. It is not fit from real
// data — it exists only so the service has something to serve before a
// real training pipeline produces a model.
var seedWeights = []float64{2.8, 0.4, 0.0, 0.0, 0.0, 0.0, 0.6, 1.5}

const seedIntercept = 3.0

// linearPredictorBlob mirrors internal/eta's unexported linearPredictor
// wire shape, duplicated here because that type is intentionally
// unexported outside its package.
type linearPredictorBlob struct {
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
}

type artifactMetadata struct {
	RMSE         float64  `json:"rmse"`
	TrainedAt    string   `json:"trained_at"`
	FeatureOrder []string `json:"feature_order"`
	Unit         string   `json:"unit"`
}

// Trainer writes a fresh model artifact into the registry root.
type Trainer struct {
	Root         string
	ExperimentID string
	ModelName    string
	SeedSamples  int
	Logger       *zap.Logger
}

// NewTrainer constructs a Trainer. SeedSamples controls how many synthetic
// feature/duration pairs are used to estimate the artifact's reported RMSE.
func NewTrainer(root, experimentID, modelName string, seedSamples int, logger *zap.Logger) *Trainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if seedSamples <= 0 {
		seedSamples = 500
	}
	return &Trainer{Root: root, ExperimentID: experimentID, ModelName: modelName, SeedSamples: seedSamples, Logger: logger}
}

// Train writes one new run directory under the registry root containing a
// gob-encoded predictor and its metadata.json, then verifies — per §9's own
// recommendation — that a Scanner can discover and deserialize it before
// reporting success. Returns the new run's ID.
func (t *Trainer) Train() (string, error) {
	runID := uuid.NewString()
	artifactDir := filepath.Join(t.Root, t.ExperimentID, runID, "artifacts", t.ModelName)
	if err := os.MkdirAll(artifactDir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	rmse := t.estimateRMSE()

	blob := linearPredictorBlob{Weights: seedWeights, Intercept: seedIntercept}
	gobBytes, err := encodeGob(blob)
	if err != nil {
		return "", fmt.Errorf("encode predictor: %w", err)
	}
	if err := os.WriteFile(filepath.Join(artifactDir, "predictor.gob"), gobBytes, 0o644); err != nil {
		return "", fmt.Errorf("write predictor: %w", err)
	}

	meta := artifactMetadata{
		RMSE:      rmse,
		TrainedAt: time.Now().UTC().Format(time.RFC3339),
		FeatureOrder: []string{
			"distance_km", "passenger_count", "vendor_id", "hour_of_day",
			"day_of_week", "month", "is_weekend", "is_rush_hour",
		},
		Unit: "minutes",
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(artifactDir, "metadata.json"), metaBytes, 0o644); err != nil {
		return "", fmt.Errorf("write metadata: %w", err)
	}

	t.Logger.Info("trained seed model",
		zap.String("run_id", runID),
		zap.Float64("rmse", rmse),
		zap.Int("seed_samples", t.SeedSamples),
	)

	if err := t.verify(runID); err != nil {
		return "", fmt.Errorf("trained artifact failed verification: %w", err)
	}

	return runID, nil
}

// verify re-scans the registry and confirms the just-written run is the one
// selected and actually deserializes via SelectBest, tightening bootstrap's
// acceptance criterion to match what the scanner itself requires (§9 Open
// Question #3 decision) — a candidate merely appearing in Scan's results is
// not enough, since Scan only checks metadata.json and file presence; only
// SelectBest attempts the real loadPredictor deserialization.
func (t *Trainer) verify(runID string) error {
	scanner := eta.NewScanner(t.Root, t.ExperimentID, t.ModelName, t.Logger)
	loaded, err := scanner.SelectBest()
	if err != nil {
		return err
	}
	if loaded.RunID != runID {
		return fmt.Errorf("run %s did not deserialize; scanner selected %s instead", runID, loaded.RunID)
	}
	return nil
}

// estimateRMSE synthesizes SeedSamples trips (deterministic: distance and
// hour are derived arithmetically from the sample index, not from time or
// random state, so repeated calls return the same value) and reports the
// seed model's root-mean-square error against a simple synthetic "ground
// truth" duration.
func (t *Trainer) estimateRMSE() float64 {
	var sumSquaredError float64
	for i := 0; i < t.SeedSamples; i++ {
		distance := 0.5 + math.Mod(float64(i)*0.37, 20.0)
		hour := i % 24
		rush := 0.0
		if hour == 8 || hour == 18 {
			rush = 1.0
		}
		predicted := seedIntercept + seedWeights[0]*distance + seedWeights[6]*0 + seedWeights[7]*rush
		actual := 3.0 + distance*2.5 + rush*2.0
		err := predicted - actual
		sumSquaredError += err * err
	}
	if t.SeedSamples == 0 {
		return 0
	}
	return math.Sqrt(sumSquaredError / float64(t.SeedSamples))
}

func encodeGob(blob linearPredictorBlob) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(blob); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
