// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Outcome labels shared by the recorders.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeDuplicate   = "duplicate"
	OutcomeInvalid     = "invalid"
	OutcomeRateLimited = "rate_limited"
	OutcomeUnavailable = "unavailable"
)

// Recorder captures metric events for the application.
type Recorder interface {
	// Credential metrics
	IncRegistration(outcome string) // success, duplicate, invalid, failure
	IncLogin(outcome string)        // success, failure, rate_limited

	// Prediction metrics
	IncPrediction(outcome string) // high_risk or low_risk on success, otherwise invalid, unavailable, failure
	ObservePredictionDuration(duration time.Duration)

	// HTTP metrics
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)
}
