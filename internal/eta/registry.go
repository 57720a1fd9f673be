package eta

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
)

// modelMetadata mirrors the sibling metadata.json written alongside every
// predictor blob (§6 "On-disk model layout").
type modelMetadata struct {
	RMSE         float64  `json:"rmse"`
	TrainedAt    string   `json:"trained_at"`
	FeatureOrder []string `json:"feature_order"`
	Unit         string   `json:"unit"`
}

// ModelArtifact describes one candidate discovered on disk (§3).
type ModelArtifact struct {
	RunID        string
	Path         string
	RMSE         float64
	TrainedAt    time.Time
	FeatureOrder []string
	Unit         string
	Valid        bool
}

// ScanResult is the ranked, ordered outcome of one registry scan (§3).
// Ordering: ascending by RMSE, ties broken by more-recent TrainedAt, then
// by RunID lexicographically.
type ScanResult struct {
	Candidates []ModelArtifact
	ScannedAt  time.Time
}

// Scanner is C2: it discovers valid model artifacts on disk, ranks them,
// and loads the "best" one, treating the filesystem as the sole source of
// truth and ignoring any separate tracking database (§4.2 key design
// decision, §9 "Filesystem-as-database pattern").
type Scanner struct {
	Root         string
	ExperimentID string
	ModelName    string
	logger       *zap.Logger
}

// NewScanner constructs a Scanner rooted at the given registry directory.
func NewScanner(root, experimentID, modelName string, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{Root: root, ExperimentID: experimentID, ModelName: modelName, logger: logger}
}

// Scan walks one level of <root>/<experiment_id>/ and ranks every
// well-formed candidate found there (§4.2 Scan algorithm).
func (s *Scanner) Scan() (ScanResult, error) {
	expDir := filepath.Join(s.Root, s.ExperimentID)

	entries, err := os.ReadDir(expDir)
	if err != nil {
		if os.IsNotExist(err) {
			return ScanResult{ScannedAt: time.Now()}, nil
		}
		return ScanResult{}, err
	}

	var candidates []ModelArtifact
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		runID := entry.Name()
		artifact, ok := s.probe(runID)
		if !ok {
			continue
		}
		candidates = append(candidates, artifact)
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.RMSE != b.RMSE {
			return a.RMSE < b.RMSE
		}
		if !a.TrainedAt.Equal(b.TrainedAt) {
			return a.TrainedAt.After(b.TrainedAt)
		}
		return a.RunID < b.RunID
	})

	return ScanResult{Candidates: candidates, ScannedAt: time.Now()}, nil
}

// probe checks whether runID has a complete, parseable artifact. Incomplete
// or malformed runs are reported invalid, never as an error — "this is not
// an error — incomplete runs are common during training" (§4.2 step 2).
func (s *Scanner) probe(runID string) (ModelArtifact, bool) {
	artifactDir := filepath.Join(s.Root, s.ExperimentID, runID, "artifacts", s.ModelName)
	metaPath := filepath.Join(artifactDir, "metadata.json")

	predictorPath, err := s.findPredictorBlob(artifactDir)
	if err != nil {
		s.logger.Debug("candidate invalid: no predictor blob", zap.String("run_id", runID), zap.Error(err))
		return ModelArtifact{}, false
	}

	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		s.logger.Debug("candidate invalid: no metadata", zap.String("run_id", runID), zap.Error(err))
		return ModelArtifact{}, false
	}

	var meta modelMetadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		s.logger.Debug("candidate invalid: unparseable metadata", zap.String("run_id", runID), zap.Error(err))
		return ModelArtifact{}, false
	}

	if math.IsNaN(meta.RMSE) || math.IsInf(meta.RMSE, 0) {
		s.logger.Debug("candidate invalid: non-finite rmse", zap.String("run_id", runID))
		return ModelArtifact{}, false
	}

	trainedAt, err := time.Parse(time.RFC3339, meta.TrainedAt)
	if err != nil {
		s.logger.Debug("candidate invalid: unparseable trained_at", zap.String("run_id", runID), zap.Error(err))
		return ModelArtifact{}, false
	}

	return ModelArtifact{
		RunID:        runID,
		Path:         predictorPath,
		RMSE:         meta.RMSE,
		TrainedAt:    trainedAt,
		FeatureOrder: meta.FeatureOrder,
		Unit:         meta.Unit,
		Valid:        true,
	}, true
}

func (s *Scanner) findPredictorBlob(artifactDir string) (string, error) {
	for _, ext := range []string{".json", ".gob"} {
		candidate := filepath.Join(artifactDir, "predictor"+ext)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", os.ErrNotExist
}

// SelectBest scans, then deserializes candidates in ranked order until one
// succeeds (§4.2: "select_best succeeds if any candidate deserializes
// successfully"). Deserialization failures demote the candidate rather than
// abort the whole operation.
func (s *Scanner) SelectBest() (*LoadedModel, error) {
	result, err := s.Scan()
	if err != nil {
		return nil, err
	}

	for _, candidate := range result.Candidates {
		predictor, err := loadPredictor(candidate.Path)
		if err != nil {
			s.logger.Warn("candidate failed to deserialize, trying next",
				zap.String("run_id", candidate.RunID), zap.Error(err))
			continue
		}

		return &LoadedModel{
			Predictor:    predictor,
			RunID:        candidate.RunID,
			RMSE:         candidate.RMSE,
			Unit:         candidate.Unit,
			LoadedAt:     time.Now(),
			FeatureOrder: candidate.FeatureOrder,
		}, nil
	}

	return nil, &ErrNoModelAvailable{Reason: "no candidate in registry deserialized successfully"}
}
