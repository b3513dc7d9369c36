package predictor

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/glycoguard/glycoguard/internal/model"
)

// Scaler kinds.
const (
	ScalerStandard = "standard"
	ScalerMinMax   = "minmax"
)

// ClassifierLogistic is the only supported classifier kind.
const ClassifierLogistic = "logistic"

// scalerFile is the on-disk scaler artifact. YAML is a superset of JSON, so both encodings decode.
type scalerFile struct {
	Kind         string    `yaml:"kind"`
	FeatureNames []string  `yaml:"feature_names"`
	Mean         []float64 `yaml:"mean"`
	Scale        []float64 `yaml:"scale"`
	Min          []float64 `yaml:"min"`
	Max          []float64 `yaml:"max"`
}

// classifierFile is the on-disk classifier artifact.
type classifierFile struct {
	Kind         string    `yaml:"kind"`
	FeatureNames []string  `yaml:"feature_names"`
	Coefficients []float64 `yaml:"coefficients"`
	Intercept    float64   `yaml:"intercept"`
}

// Scaler maps raw features to the space the classifier was trained in: (x - offset) / divisor.
type Scaler struct {
	kind    string
	offset  model.FeatureVector
	divisor model.FeatureVector
}

// Transform scales a feature vector.
func (s *Scaler) Transform(v model.FeatureVector) model.FeatureVector {
	var out model.FeatureVector
	for i := range v {
		out[i] = (v[i] - s.offset[i]) / s.divisor[i]
	}
	return out
}

// LogisticModel is a binary logistic regression over scaled features.
type LogisticModel struct {
	coefficients model.FeatureVector
	intercept    float64
}

// decision returns the linear score; the positive class is predicted when it is > 0.
func (m *LogisticModel) decision(x model.FeatureVector) float64 {
	z := m.intercept
	for i := range x {
		z += m.coefficients[i] * x[i]
	}
	return z
}

// sigmoid is evaluated on the side that cannot overflow.
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// LoadScaler reads a scaler artifact.
func LoadScaler(path string) (*Scaler, error) {
	var f scalerFile
	if err := decodeFile(path, &f); err != nil {
		return nil, &ArtifactLoadError{Artifact: "scaler", Path: path, Err: err}
	}

	s, err := f.build()
	if err != nil {
		return nil, &ArtifactLoadError{Artifact: "scaler", Path: path, Err: err}
	}
	return s, nil
}

func (f *scalerFile) build() (*Scaler, error) {
	if err := checkFeatureNames(f.FeatureNames); err != nil {
		return nil, err
	}

	s := &Scaler{kind: f.Kind}
	switch f.Kind {
	case ScalerStandard, "":
		s.kind = ScalerStandard
		if err := fill(&s.offset, "mean", f.Mean); err != nil {
			return nil, err
		}
		if err := fill(&s.divisor, "scale", f.Scale); err != nil {
			return nil, err
		}
	case ScalerMinMax:
		var maxs model.FeatureVector
		if err := fill(&s.offset, "min", f.Min); err != nil {
			return nil, err
		}
		if err := fill(&maxs, "max", f.Max); err != nil {
			return nil, err
		}
		for i := range maxs {
			s.divisor[i] = maxs[i] - s.offset[i]
		}
	default:
		return nil, fmt.Errorf("unsupported scaler kind %q", f.Kind)
	}

	// A constant feature has zero spread; leave it unscaled.
	for i, d := range s.divisor {
		if d == 0 {
			s.divisor[i] = 1
		}
	}

	return s, nil
}

// LoadLogistic reads a classifier artifact.
func LoadLogistic(path string) (*LogisticModel, error) {
	var f classifierFile
	if err := decodeFile(path, &f); err != nil {
		return nil, &ArtifactLoadError{Artifact: "classifier", Path: path, Err: err}
	}

	m, err := f.build()
	if err != nil {
		return nil, &ArtifactLoadError{Artifact: "classifier", Path: path, Err: err}
	}
	return m, nil
}

func (f *classifierFile) build() (*LogisticModel, error) {
	if f.Kind != ClassifierLogistic && f.Kind != "" {
		return nil, fmt.Errorf("unsupported classifier kind %q", f.Kind)
	}
	if err := checkFeatureNames(f.FeatureNames); err != nil {
		return nil, err
	}
	if math.IsNaN(f.Intercept) || math.IsInf(f.Intercept, 0) {
		return nil, errors.New("intercept is not finite")
	}

	m := &LogisticModel{intercept: f.Intercept}
	if err := fill(&m.coefficients, "coefficients", f.Coefficients); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return errors.New("file is empty")
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func fill(dst *model.FeatureVector, field string, values []float64) error {
	if len(values) != model.FeatureCount {
		return fmt.Errorf("%s: expected %d values, got %d", field, model.FeatureCount, len(values))
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s[%d] is not finite", field, i)
		}
		dst[i] = v
	}
	return nil
}

// checkFeatureNames accepts an omitted list; a present list must match the trained order exactly.
func checkFeatureNames(names []string) error {
	if len(names) == 0 {
		return nil
	}
	if !slices.Equal(names, model.FeatureNames()) {
		return fmt.Errorf("feature_names %v do not match expected order %v", names, model.FeatureNames())
	}
	return nil
}
