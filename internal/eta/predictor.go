package eta

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Predictor is the explicit interface replacing the source system's
// duck-typed "object with a predict method" (§9 re-architecture notes).
// Implementations must be safe for concurrent Predict calls; the service
// never mutates a Predictor after it is loaded.
type Predictor interface {
	Predict(features []float64) (float64, error)
}

// linearPredictor is a trivial closed-form predictor: a weighted sum of
// features plus an intercept. It is the format produced by
// internal/bootstrap and by the JSON artifact loader.
type linearPredictor struct {
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
}

func (p *linearPredictor) Predict(features []float64) (float64, error) {
	if len(features) != len(p.Weights) {
		return 0, fmt.Errorf("feature vector has %d elements, predictor expects %d", len(features), len(p.Weights))
	}
	sum := p.Intercept
	for i, w := range p.Weights {
		sum += w * features[i]
	}
	return sum, nil
}

// loadJSONPredictor deserializes a predictor.json artifact blob.
func loadJSONPredictor(path string) (Predictor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p linearPredictor
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode json predictor: %w", err)
	}
	if len(p.Weights) == 0 {
		return nil, fmt.Errorf("predictor has no weights")
	}
	return &p, nil
}

// loadGobPredictor deserializes a predictor.gob artifact blob written with
// Go's encoding/gob — the second supported on-disk format (§6 "The <ext>
// and serialization format are left to the implementer").
func loadGobPredictor(path string) (Predictor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p linearPredictor
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode gob predictor: %w", err)
	}
	if len(p.Weights) == 0 {
		return nil, fmt.Errorf("predictor has no weights")
	}
	return &p, nil
}

// loadPredictor recognizes the artifact format by extension, per §6: "the
// scanner must be able to recognize the format by extension or magic
// bytes."
func loadPredictor(path string) (Predictor, error) {
	switch filepath.Ext(path) {
	case ".json":
		return loadJSONPredictor(path)
	case ".gob":
		return loadGobPredictor(path)
	default:
		return nil, fmt.Errorf("unrecognized predictor format: %s", path)
	}
}

// encodeGobPredictor serializes a linearPredictor to gob bytes. It is used
// by this package's tests; internal/bootstrap encodes its artifact with its
// own mirror type.
func encodeGobPredictor(p *linearPredictor) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
