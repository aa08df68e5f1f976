// Package observe provides application-wide observability primitives
// for Serin: OpenTelemetry metrics, tracing, and structured logging
// helpers.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A
// Prometheus exporter bridge is available via [InitProvider] so that
// metrics can be scraped from the standard /metrics endpoint. Tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Serin metrics.
const meterName = "github.com/serin-ai/serin"

// Metrics holds all OpenTelemetry metric instruments for the assistant
// pipeline. All fields are safe for concurrent use.
type Metrics struct {
	// TranscriptionDuration tracks speech-to-text latency. Attribute:
	//   attribute.String("strategy", ...)
	TranscriptionDuration metric.Float64Histogram

	// SearchDuration tracks web-search augmentation latency.
	SearchDuration metric.Float64Histogram

	// CompletionDuration tracks LLM streaming latency, first byte to
	// stream end.
	CompletionDuration metric.Float64Histogram

	// SpeakDuration tracks TTS synthesis and playback latency.
	SpeakDuration metric.Float64Histogram

	// TurnDuration tracks end-to-end turn latency.
	TurnDuration metric.Float64Histogram

	// Turns counts completed turns. Attributes:
	//   attribute.String("kind", "voice"|"text"), attribute.String("status", ...)
	Turns metric.Int64Counter

	// TurnErrors counts failed turns. Attribute:
	//   attribute.String("stage", ...)
	TurnErrors metric.Int64Counter

	// ActiveTurns tracks turns currently in flight (0 or 1 per
	// orchestrator).
	ActiveTurns metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds)
// tuned for the assistant's mix of on-device and network stages.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.TranscriptionDuration, "serin.transcription.duration", "Latency of speech-to-text transcription."},
		{&met.SearchDuration, "serin.search.duration", "Latency of web-search augmentation."},
		{&met.CompletionDuration, "serin.completion.duration", "Latency of LLM completion streaming."},
		{&met.SpeakDuration, "serin.speak.duration", "Latency of TTS synthesis and playback."},
		{&met.TurnDuration, "serin.turn.duration", "End-to-end assistant turn latency."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	if met.Turns, err = m.Int64Counter("serin.turns",
		metric.WithDescription("Total completed turns by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.TurnErrors, err = m.Int64Counter("serin.turn.errors",
		metric.WithDescription("Total failed turns by pipeline stage."),
	); err != nil {
		return nil, err
	}
	if met.ActiveTurns, err = m.Int64UpDownCounter("serin.active_turns",
		metric.WithDescription("Turns currently in flight."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating
// it on first call from the global meter provider. Panics if instrument
// creation fails, which cannot happen with the no-op default provider.
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

// RecordStage records elapsed time since start on the given histogram.
// Safe to call on a nil receiver so metrics stay optional in tests.
func (m *Metrics) RecordStage(ctx context.Context, h metric.Float64Histogram, start time.Time, attrs ...attribute.KeyValue) {
	if m == nil || h == nil {
		return
	}
	h.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
}

// RecordTurn counts one finished turn.
func (m *Metrics) RecordTurn(ctx context.Context, kind, status string) {
	if m == nil {
		return
	}
	m.Turns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordTurnError counts one failed turn by stage.
func (m *Metrics) RecordTurnError(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.TurnErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// TurnStarted marks a turn in flight; the returned func marks it done.
func (m *Metrics) TurnStarted(ctx context.Context) func() {
	if m == nil {
		return func() {}
	}
	m.ActiveTurns.Add(ctx, 1)
	return func() { m.ActiveTurns.Add(ctx, -1) }
}
