package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/glycoguard/glycoguard/internal/metrics"
	"github.com/glycoguard/glycoguard/internal/model"
	"github.com/glycoguard/glycoguard/internal/predictor"
	"github.com/glycoguard/glycoguard/internal/repository"
)

// featureBounds holds the accepted closed range of each feature. Every value must also be finite and
// non-negative. Binary features accept only 0 or 1.
var featureBounds = map[string]struct {
	min, max float64
	binary   bool
}{
	model.FeatureHighBP:    {0, 1, true},
	model.FeatureGenHlth:   {1, 5, false},
	model.FeatureBMI:       {0, math.MaxFloat64, false},
	model.FeatureAge:       {0, math.MaxFloat64, false},
	model.FeatureHighChol:  {0, 1, true},
	model.FeatureCholCheck: {0, 1, true},
	model.FeatureIncome:    {0, math.MaxFloat64, false},
	model.FeaturePhysHlth:  {0, 30, false},
}

// ProfileStats summarizes a user's history.
type ProfileStats struct {
	PredictionCount  int
	LastPredictionAt *time.Time
}

// PredictionService validates input, scores it and records the result.
type PredictionService struct {
	classifier predictor.Classifier
	store      repository.PredictionRepository
	metrics    metrics.Recorder
	logger     *slog.Logger
}

// NewPredictionService creates a PredictionService.
func NewPredictionService(classifier predictor.Classifier, store repository.PredictionRepository, recorder metrics.Recorder, logger *slog.Logger) *PredictionService {
	if classifier == nil {
		classifier = predictor.Unavailable{}
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PredictionService{
		classifier: classifier,
		store:      store,
		metrics:    recorder,
		logger:     logger,
	}
}

// Ready returns nil when predictions can be served.
func (s *PredictionService) Ready() error {
	return s.classifier.Ready()
}

// ParseFeatures reads the eight features from a submitted form.
// Returns a *ValidationError naming the first missing or out-of-range field.
func ParseFeatures(form url.Values) (model.FeatureVector, error) {
	var v model.FeatureVector
	for i, name := range model.FeatureNames() {
		raw := strings.TrimSpace(form.Get(name))
		if raw == "" {
			return v, invalidFeature(name, "value is required")
		}

		x, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return v, invalidFeature(name, fmt.Sprintf("%q is not a number", raw))
		}
		if err := checkFeature(name, x); err != nil {
			return v, err
		}
		v[i] = x
	}
	return v, nil
}

func checkFeature(name string, x float64) error {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return invalidFeature(name, "value must be finite")
	}
	b := featureBounds[name]
	switch {
	case b.binary && x != 0 && x != 1:
		return invalidFeature(name, "value must be 0 or 1")
	case name == model.FeatureBMI && x <= 0:
		return invalidFeature(name, "value must be greater than 0")
	case x < b.min || x > b.max:
		if b.max == math.MaxFloat64 {
			return invalidFeature(name, "value must not be negative")
		}
		return invalidFeature(name, fmt.Sprintf("value must be between %g and %g", b.min, b.max))
	}
	return nil
}

func invalidFeature(name, detail string) *ValidationError {
	return validationError(name, fmt.Sprintf("Invalid value for %s: %s", name, detail))
}

// Predict scores the submitted form for userID and stores the result.
// Nothing is stored unless the classifier succeeds. Returns a *ValidationError for bad input and
// an error wrapping predictor.ErrUnavailable when the model is not loaded.
func (s *PredictionService) Predict(ctx context.Context, userID int64, form url.Values) (*model.PredictionRecord, error) {
	if err := s.classifier.Ready(); err != nil {
		s.metrics.IncPrediction(metrics.OutcomeUnavailable)
		return nil, err
	}

	features, err := ParseFeatures(form)
	if err != nil {
		s.metrics.IncPrediction(metrics.OutcomeInvalid)
		return nil, err
	}

	return s.PredictFeatures(ctx, userID, features)
}

// PredictFeatures scores an already parsed vector and stores the result.
func (s *PredictionService) PredictFeatures(ctx context.Context, userID int64, features model.FeatureVector) (*model.PredictionRecord, error) {
	start := time.Now()

	label, probability, err := s.classifier.Predict(features.Slice())
	if err != nil {
		switch {
		case errors.Is(err, predictor.ErrUnavailable):
			s.metrics.IncPrediction(metrics.OutcomeUnavailable)
		case errors.Is(err, predictor.ErrFeatureCount), errors.Is(err, predictor.ErrNonFinite):
			s.metrics.IncPrediction(metrics.OutcomeInvalid)
		default:
			s.metrics.IncPrediction(metrics.OutcomeFailure)
		}
		return nil, fmt.Errorf("predict: %w", err)
	}

	rec := &model.PredictionRecord{
		UserID:      userID,
		Features:    features,
		Prediction:  label,
		Probability: probability,
	}
	if err := s.store.SavePrediction(ctx, rec); err != nil {
		s.metrics.IncPrediction(metrics.OutcomeFailure)
		return nil, fmt.Errorf("save prediction: %w", err)
	}

	s.metrics.ObservePredictionDuration(time.Since(start))
	s.metrics.IncPrediction(outcomeFor(label))
	s.logger.InfoContext(ctx, "prediction recorded",
		slog.Int64("user_id", userID),
		slog.Int64("prediction_id", rec.ID),
		slog.Int("label", int(label)),
		slog.Float64("probability", probability),
	)
	return rec, nil
}

// History returns every prediction of userID, most recent first.
func (s *PredictionService) History(ctx context.Context, userID int64) ([]*model.PredictionRecord, error) {
	records, err := s.store.ListPredictionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	return records, nil
}

// Recent returns at most limit of the newest predictions of userID.
func (s *PredictionService) Recent(ctx context.Context, userID int64, limit int) ([]*model.PredictionRecord, error) {
	records, err := s.History(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limit >= 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Stats returns the prediction count and the time of the newest prediction, truncated to seconds.
func (s *PredictionService) Stats(ctx context.Context, userID int64) (ProfileStats, error) {
	records, err := s.History(ctx, userID)
	if err != nil {
		return ProfileStats{}, err
	}

	stats := ProfileStats{PredictionCount: len(records)}
	if len(records) > 0 {
		last := records[0].CreatedAt.Truncate(time.Second)
		stats.LastPredictionAt = &last
	}
	return stats, nil
}

// ResultMessage is the flash shown after a successful prediction.
func ResultMessage(rec *model.PredictionRecord) string {
	return fmt.Sprintf("Prediction: %s (Probability: %.1f%%)", rec.Prediction, rec.Probability*100)
}

func outcomeFor(label model.Label) string {
	if label == model.LabelHighRisk {
		return "high_risk"
	}
	return "low_risk"
}
