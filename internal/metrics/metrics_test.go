package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestInMemoryRecorder_Counts(t *testing.T) {
	t.Parallel()

	m := NewInMemory()
	m.IncRegistration(OutcomeSuccess)
	m.IncRegistration(OutcomeDuplicate)
	m.IncRegistration(OutcomeDuplicate)
	m.IncLogin(OutcomeFailure)
	m.IncPrediction("high_risk")
	m.ObservePredictionDuration(2 * time.Millisecond)
	m.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)

	snap := m.Snapshot()
	if snap.Registrations[OutcomeDuplicate] != 2 {
		t.Errorf("duplicate registrations = %d, want 2", snap.Registrations[OutcomeDuplicate])
	}
	if snap.Logins[OutcomeFailure] != 1 {
		t.Errorf("failed logins = %d, want 1", snap.Logins[OutcomeFailure])
	}
	if snap.Predictions["high_risk"] != 1 {
		t.Errorf("high risk predictions = %d, want 1", snap.Predictions["high_risk"])
	}
	if snap.PredictionDurationCount != 1 || snap.PredictionDurationTotalNs != int64(2*time.Millisecond) {
		t.Errorf("unexpected duration totals: %+v", snap)
	}
	if snap.HTTPRequests != 1 {
		t.Errorf("http requests = %d, want 1", snap.HTTPRequests)
	}
}

func TestInMemoryRecorder_SnapshotIsCopy(t *testing.T) {
	t.Parallel()

	m := NewInMemory()
	m.IncLogin(OutcomeSuccess)

	snap := m.Snapshot()
	snap.Logins[OutcomeSuccess] = 99

	if got := m.Snapshot().Logins[OutcomeSuccess]; got != 1 {
		t.Errorf("snapshot mutation leaked into recorder: %d", got)
	}
}

func scrape(t *testing.T, p *PrometheusRecorder) string {
	t.Helper()
	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	return rec.Body.String()
}

func TestPrometheusRecorder_Counters(t *testing.T) {
	t.Parallel()

	p := NewPrometheus()
	p.IncLogin(OutcomeSuccess)
	p.IncLogin(OutcomeSuccess)
	p.IncLogin(OutcomeRateLimited)

	body := scrape(t, p)
	for _, want := range []string{
		`glycoguard_logins_total{outcome="success"} 2`,
		`glycoguard_logins_total{outcome="rate_limited"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestPrometheusRecorder_Handler(t *testing.T) {
	t.Parallel()

	p := NewPrometheus()
	p.IncPrediction("low_risk")
	p.ObservePredictionDuration(time.Millisecond)
	p.ObserveHTTPRequest(http.MethodPost, "/predict", http.StatusSeeOther, 3*time.Millisecond)

	body := scrape(t, p)
	for _, want := range []string{
		`glycoguard_predictions_total{outcome="low_risk"} 1`,
		"glycoguard_prediction_duration_seconds_count 1",
		`glycoguard_http_request_duration_seconds_count{method="POST",route="/predict",status="303"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNoopRecorder(t *testing.T) {
	t.Parallel()

	r := NewNoop()
	r.IncRegistration(OutcomeSuccess)
	r.IncLogin(OutcomeFailure)
	r.IncPrediction(OutcomeUnavailable)
	r.ObservePredictionDuration(time.Second)
	r.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Second)
}
