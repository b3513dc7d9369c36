// Package predictor wraps the pre-trained diabetes-risk classifier and its feature scaler.
//
// Artifacts are loaded once at start and are read-only afterwards, so a Predictor is
// safe for concurrent use. When loading fails the application runs with an Unavailable
// classifier instead, and the prediction feature reports itself disabled.
package predictor

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/glycoguard/glycoguard/internal/model"
)

// Classifier is either a loaded *Predictor or Unavailable.
type Classifier interface {
	// Predict returns the binary label and the positive-class probability.
	Predict(features []float64) (model.Label, float64, error)
	// Ready returns nil when predictions can be served.
	Ready() error
}

// Predictor applies a scaler and a logistic classifier to a feature vector.
type Predictor struct {
	scaler *Scaler
	model  *LogisticModel
}

// New builds a Predictor from already loaded artifacts.
func New(scaler *Scaler, lm *LogisticModel) *Predictor {
	return &Predictor{scaler: scaler, model: lm}
}

// Load reads both artifacts from disk.
// Returns an *ArtifactLoadError if either file is missing or malformed.
func Load(modelPath, scalerPath string) (*Predictor, error) {
	lm, err := LoadLogistic(modelPath)
	if err != nil {
		return nil, err
	}

	scaler, err := LoadScaler(scalerPath)
	if err != nil {
		return nil, err
	}

	return New(scaler, lm), nil
}

// LoadOrUnavailable loads the artifacts, logging a warning and returning
// Unavailable when they cannot be used. It never fails.
func LoadOrUnavailable(modelPath, scalerPath string, logger *slog.Logger) Classifier {
	p, err := Load(modelPath, scalerPath)
	if err != nil {
		logger.Warn("prediction disabled: could not load model artifacts",
			slog.String("model_path", modelPath),
			slog.String("scaler_path", scalerPath),
			slog.String("error", err.Error()),
		)
		return Unavailable{Reason: err}
	}

	logger.Info("model artifacts loaded",
		slog.String("model_path", modelPath),
		slog.String("scaler_path", scalerPath),
		slog.String("scaler_kind", p.scaler.kind),
	)
	return p
}

// Predict scales the features and classifies them.
// features must hold exactly model.FeatureCount finite values in FeatureNames order.
func (p *Predictor) Predict(features []float64) (model.Label, float64, error) {
	v, err := model.FeatureVectorFromSlice(features)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrFeatureCount, err)
	}

	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, 0, fmt.Errorf("%w: %s", ErrNonFinite, model.FeatureNames()[i])
		}
	}

	z := p.model.decision(p.scaler.Transform(v))
	probability := sigmoid(z)

	label := model.LabelLowRisk
	if z > 0 {
		label = model.LabelHighRisk
	}

	return label, probability, nil
}

// Ready always succeeds for a loaded Predictor.
func (p *Predictor) Ready() error {
	return nil
}

// FeatureNames returns the expected feature names in order.
func (p *Predictor) FeatureNames() []string {
	return model.FeatureNames()
}

// Unavailable is the Classifier used when artifacts could not be loaded.
type Unavailable struct {
	Reason error
}

// Predict always fails with ErrUnavailable.
func (u Unavailable) Predict([]float64) (model.Label, float64, error) {
	return 0, 0, u.Ready()
}

// Ready reports why predictions are disabled.
func (u Unavailable) Ready() error {
	if u.Reason == nil {
		return ErrUnavailable
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, u.Reason)
}

var (
	_ Classifier = (*Predictor)(nil)
	_ Classifier = Unavailable{}
)
