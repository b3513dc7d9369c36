package predictor

import (
	"errors"
	"fmt"
)

var (
	// ErrFeatureCount is returned when the input does not have exactly model.FeatureCount values.
	ErrFeatureCount = errors.New("wrong number of features")
	// ErrNonFinite is returned when an input value is NaN or infinite.
	ErrNonFinite = errors.New("feature value is not finite")
	// ErrUnavailable is returned by a Classifier whose artifacts failed to load.
	ErrUnavailable = errors.New("prediction service is unavailable")
)

// ArtifactLoadError reports a missing or malformed model artifact.
type ArtifactLoadError struct {
	Artifact string // "classifier" or "scaler"
	Path     string
	Err      error
}

func (e *ArtifactLoadError) Error() string {
	return fmt.Sprintf("load %s artifact %q: %v", e.Artifact, e.Path, e.Err)
}

func (e *ArtifactLoadError) Unwrap() error {
	return e.Err
}
