package model

import (
	"fmt"
	"time"
)

// Feature names in the column order the scaler and classifier were trained on.
const (
	FeatureHighBP    = "HighBP"
	FeatureGenHlth   = "GenHlth"
	FeatureBMI       = "BMI"
	FeatureAge       = "Age"
	FeatureHighChol  = "HighChol"
	FeatureCholCheck = "CholCheck"
	FeatureIncome    = "Income"
	FeaturePhysHlth  = "PhysHlth"
)

// FeatureCount is the number of inputs consumed by the classifier.
const FeatureCount = 8

// DashboardRecentLimit is how many predictions the dashboard shows.
const DashboardRecentLimit = 5

// featureNames is the canonical order. Index i of a FeatureVector holds featureNames[i].
var featureNames = [FeatureCount]string{
	FeatureHighBP,
	FeatureGenHlth,
	FeatureBMI,
	FeatureAge,
	FeatureHighChol,
	FeatureCholCheck,
	FeatureIncome,
	FeaturePhysHlth,
}

// FeatureNames returns the feature names in trained column order.
func FeatureNames() []string {
	names := make([]string, FeatureCount)
	copy(names, featureNames[:])
	return names
}

// FeatureVector is the ordered classifier input.
type FeatureVector [FeatureCount]float64

// Slice returns the vector as a slice, preserving order.
func (v FeatureVector) Slice() []float64 {
	out := make([]float64, FeatureCount)
	copy(out, v[:])
	return out
}

// FeatureVectorFromSlice converts a slice into a FeatureVector.
// Returns an error when the length is not FeatureCount.
func FeatureVectorFromSlice(values []float64) (FeatureVector, error) {
	var v FeatureVector
	if len(values) != FeatureCount {
		return v, fmt.Errorf("expected %d features, got %d", FeatureCount, len(values))
	}
	copy(v[:], values)
	return v, nil
}

// Label is the binary classifier output.
type Label int

const (
	LabelLowRisk  Label = 0
	LabelHighRisk Label = 1
)

// IsValid checks if the label is 0 or 1.
func (l Label) IsValid() bool {
	return l == LabelLowRisk || l == LabelHighRisk
}

// String returns the user-facing risk wording.
func (l Label) String() string {
	if l == LabelHighRisk {
		return "High Risk"
	}
	return "Low Risk"
}

// PredictionRecord is one immutable stored classification outcome.
type PredictionRecord struct {
	ID          int64         `json:"id"`
	UserID      int64         `json:"user_id"`
	Features    FeatureVector `json:"features"`
	Prediction  Label         `json:"prediction"`
	Probability float64       `json:"probability"`
	CreatedAt   time.Time     `json:"created_at"`
}

// HighBP returns the HighBP feature value.
func (p *PredictionRecord) HighBP() float64 { return p.Features[0] }

// GenHlth returns the GenHlth feature value.
func (p *PredictionRecord) GenHlth() float64 { return p.Features[1] }

// BMI returns the BMI feature value.
func (p *PredictionRecord) BMI() float64 { return p.Features[2] }

// Age returns the Age feature value.
func (p *PredictionRecord) Age() float64 { return p.Features[3] }

// HighChol returns the HighChol feature value.
func (p *PredictionRecord) HighChol() float64 { return p.Features[4] }

// CholCheck returns the CholCheck feature value.
func (p *PredictionRecord) CholCheck() float64 { return p.Features[5] }

// Income returns the Income feature value.
func (p *PredictionRecord) Income() float64 { return p.Features[6] }

// PhysHlth returns the PhysHlth feature value.
func (p *PredictionRecord) PhysHlth() float64 { return p.Features[7] }
