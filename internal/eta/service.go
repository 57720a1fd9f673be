package eta

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/richxcame/taxi-eta/pkg/config"
	"github.com/richxcame/taxi-eta/pkg/resilience"
	"go.uber.org/zap"
)

// BreakerSettingsFromConfig adapts the environment-driven circuit breaker
// configuration (§6) into the Settings NewService expects. A disabled
// breaker still gets a Settings value — with a threshold high enough it
// effectively never trips — since the predictor call is always wrapped.
func BreakerSettingsFromConfig(cfg config.CircuitBreakerConfig) resilience.Settings {
	failureThreshold := uint32(cfg.FailureThreshold)
	if !cfg.Enabled || failureThreshold == 0 {
		failureThreshold = math.MaxUint32
	}
	successThreshold := uint32(cfg.SuccessThreshold)
	if successThreshold == 0 {
		successThreshold = 1
	}
	return resilience.Settings{
		Name:             "eta-predictor",
		Interval:         time.Duration(cfg.IntervalSeconds) * time.Second,
		Timeout:          time.Duration(cfg.TimeoutSeconds) * time.Second,
		FailureThreshold: failureThreshold,
		SuccessThreshold: successThreshold,
	}
}

// LoadedModel is the in-memory result of selecting and deserializing the
// current best artifact (§3). It is owned exclusively by the Service,
// replaced atomically on reload, and never mutated in place.
type LoadedModel struct {
	Predictor    Predictor
	RunID        string
	RMSE         float64
	Unit         string
	LoadedAt     time.Time
	FeatureOrder []string
}

// Version returns the 8-char run-id prefix used as model_version on the
// wire (§6).
func (m *LoadedModel) Version() string {
	if len(m.RunID) <= 8 {
		return m.RunID
	}
	return m.RunID[:8]
}

// Prediction is the transient output of a prediction request (§3).
type Prediction struct {
	PredictedDurationMinutes float64
	ConfidenceScore          float64
	ModelVersion             string
	PredictionTimestamp      time.Time
	FeaturesUsed             FeatureVector
}

// The two fixed heuristic multipliers from §4.3 step 4. Preserved exactly
// for regression testing per §9 Open Question #2 — flagged as a redesign
// candidate, not altered.
const (
	confidenceBase                = 0.85
	confidenceDistanceMultiplier  = 0.9
	confidenceRushHourMultiplier  = 0.95
	confidenceLongTripThresholdKm = 50.0
	maxPredictedDurationMinutes   = 600.0
)

// Service is C3: it owns a single LoadedModel slot protected by a
// readers-writer discipline (many concurrent predictions, exclusive write
// only for the pointer swap on reload) and serves the prediction hot path
// (§4.3, §5 Shared-resource policy).
type Service struct {
	mu      sync.RWMutex
	current *LoadedModel

	scanner *Scanner
	builder *FeatureBuilder
	breaker *resilience.CircuitBreaker
	logger  *zap.Logger
}

// NewService constructs a Service around a Scanner and FeatureBuilder. The
// circuit breaker guards repeated PredictorFaults from hammering a broken
// predictor (§4.3 Failure modes; grounded on pkg/resilience.CircuitBreaker).
func NewService(scanner *Scanner, builder *FeatureBuilder, breakerSettings resilience.Settings, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		scanner: scanner,
		builder: builder,
		breaker: resilience.NewCircuitBreaker(breakerSettings, nil),
		logger:  logger,
	}
}

// Reload re-runs the scanner and atomically swaps the model slot (§4.3
// Reload semantics). On failure the existing model, if any, is left in
// place — "during runtime reload, leaves the existing model in place" (§7).
func (s *Service) Reload() (*LoadedModel, error) {
	model, err := s.scanner.SelectBest()
	if err != nil {
		s.logger.Warn("reload failed, keeping existing model", zap.Error(err))
		return nil, err
	}

	s.mu.Lock()
	s.current = model
	s.mu.Unlock()

	s.logger.Info("model reloaded",
		zap.String("run_id", model.RunID),
		zap.Float64("rmse", model.RMSE),
	)

	return model, nil
}

// Current returns the presently loaded model for introspection (§4.3,
// used by the /model-info endpoint), or ErrNotInitialized.
func (s *Service) Current() (*LoadedModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, &ErrNotInitialized{}
	}
	return s.current, nil
}

// Predict is the hot path (§4.3 Prediction algorithm). It never blocks on
// I/O: the model is already in memory and the read lock is held only long
// enough to snapshot the current model reference.
func (s *Service) Predict(ctx context.Context, req PredictionRequest) (*Prediction, error) {
	s.mu.RLock()
	model := s.current
	s.mu.RUnlock()

	if model == nil {
		return nil, &ErrNotInitialized{}
	}

	features, err := s.builder.Build(req)
	if err != nil {
		return nil, err
	}

	raw, err := s.invokePredictor(ctx, model, features)
	if err != nil {
		return nil, &ErrPredictorFault{Cause: err}
	}

	minutes := normalizeToMinutes(raw, model.Unit, s.logger)
	if minutes < 0 {
		minutes = 0
	}
	if minutes > maxPredictedDurationMinutes {
		minutes = maxPredictedDurationMinutes
	}

	confidence := confidenceBase
	if features.DistanceKm > confidenceLongTripThresholdKm {
		confidence *= confidenceDistanceMultiplier
	}
	if features.IsRushHour == 1 {
		confidence *= confidenceRushHourMultiplier
	}
	confidence = math.Round(confidence*1000) / 1000

	return &Prediction{
		PredictedDurationMinutes: minutes,
		ConfidenceScore:          confidence,
		ModelVersion:             model.Version(),
		PredictionTimestamp:      time.Now().UTC(),
		FeaturesUsed:             features,
	}, nil
}

func (s *Service) invokePredictor(ctx context.Context, model *LoadedModel, features FeatureVector) (float64, error) {
	result, err := s.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return model.Predictor.Predict(features.ToSlice())
	})
	if err != nil {
		return 0, err
	}
	value, ok := result.(float64)
	if !ok {
		return 0, fmt.Errorf("predictor returned unexpected type %T", result)
	}
	return value, nil
}

// normalizeToMinutes converts a raw predictor output into minutes. The
// metadata's unit field is authoritative; its absence falls back to the
// heuristic "a value > 60 is seconds, a value <= 60 is minutes" and logs a
// warning (§4.3 step 3, §9 Open Question #1).
func normalizeToMinutes(raw float64, unit string, logger *zap.Logger) float64 {
	switch unit {
	case "seconds":
		return raw / 60.0
	case "minutes":
		return raw
	default:
		logger.Warn("model metadata missing unit, applying fallback heuristic", zap.Float64("raw_value", raw))
		if raw > 60 {
			return raw / 60.0
		}
		return raw
	}
}
