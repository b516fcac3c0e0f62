// Package observe provides application-wide observability primitives for
// Slovoday: OpenTelemetry metrics, tracing helpers, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Slovoday metrics.
const meterName = "github.com/anvilane/slovoday"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// CaptureDuration tracks how long a speech capture ran, from start to
	// the terminal event.
	CaptureDuration metric.Float64Histogram

	// SpeakDuration tracks text-to-speech synthesis and playback latency.
	SpeakDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Practice ---

	// AttemptScore records the similarity score of each evaluated
	// pronunciation attempt.
	AttemptScore metric.Float64Histogram

	// Attempts counts evaluated practice attempts. Use with attributes:
	//   attribute.String("mode", "pronunciation"|"writing"),
	//   attribute.String("outcome", "success"|"failure")
	Attempts metric.Int64Counter

	// CaptureErrors counts capture failures by device error code. Use with:
	//   attribute.String("code", ...)
	CaptureErrors metric.Int64Counter

	// --- Progress ---

	// VisitsRecorded counts streak-changing daily visits.
	VisitsRecorded metric.Int64Counter

	// CurrentStreak reports the learner's streak after the latest visit.
	CurrentStreak metric.Int64Gauge

	// WordsLearned reports how many words are currently marked learned.
	WordsLearned metric.Int64Gauge
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// capture and synthesis calls against local model servers.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// scoreBuckets covers the similarity score range in steps of ten.
var scoreBuckets = []float64{
	10, 20, 30, 40, 50, 60, 70, 80, 90, 100,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CaptureDuration, err = m.Float64Histogram("slovoday.capture.duration",
		metric.WithDescription("Duration of speech captures."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeakDuration, err = m.Float64Histogram("slovoday.speak.duration",
		metric.WithDescription("Latency of text-to-speech synthesis and playback."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("slovoday.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.AttemptScore, err = m.Float64Histogram("slovoday.practice.score",
		metric.WithDescription("Similarity score of evaluated pronunciation attempts."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Attempts, err = m.Int64Counter("slovoday.practice.attempts",
		metric.WithDescription("Total evaluated practice attempts by mode and outcome."),
	); err != nil {
		return nil, err
	}
	if met.CaptureErrors, err = m.Int64Counter("slovoday.capture.errors",
		metric.WithDescription("Total capture failures by device error code."),
	); err != nil {
		return nil, err
	}
	if met.VisitsRecorded, err = m.Int64Counter("slovoday.visits.recorded",
		metric.WithDescription("Total streak-changing daily visits."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.CurrentStreak, err = m.Int64Gauge("slovoday.streak.current",
		metric.WithDescription("Learner streak after the latest visit."),
	); err != nil {
		return nil, err
	}
	if met.WordsLearned, err = m.Int64Gauge("slovoday.words.learned",
		metric.WithDescription("Number of words currently marked learned."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordAttempt records one evaluated practice attempt with the standard
// attribute set, plus its score for pronunciation attempts (pass a negative
// score to skip the histogram).
func (m *Metrics) RecordAttempt(ctx context.Context, mode, outcome string, score float64) {
	m.Attempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("outcome", outcome),
		),
	)
	if score >= 0 {
		m.AttemptScore.Record(ctx, score)
	}
}

// RecordCaptureError records one capture failure by device error code.
func (m *Metrics) RecordCaptureError(ctx context.Context, code string) {
	m.CaptureErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("code", code)),
	)
}

// RecordVisit records one streak-changing visit and the resulting streak.
func (m *Metrics) RecordVisit(ctx context.Context, currentStreak int) {
	m.VisitsRecorded.Add(ctx, 1)
	m.CurrentStreak.Record(ctx, int64(currentStreak))
}
