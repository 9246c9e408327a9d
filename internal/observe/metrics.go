// Package observe is the telemetry layer: OpenTelemetry metric
// instruments, a tracer scoped to this module, and the HTTP middleware
// that feeds both.
//
// All instruments are created through the OTel Metrics API and surface on
// /metrics through the Prometheus bridge installed by [InitProvider]. Code
// on the voice path records through the shared [DefaultMetrics] instance;
// tests construct their own [Metrics] from a private [metric.MeterProvider]
// so runs stay isolated.
package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// scopeName is the instrumentation scope for every instrument and span this
// package creates.
const scopeName = "github.com/MrWong99/auricle"

// stageBuckets are the histogram boundaries, in seconds, for voice-pipeline
// stages. Sub-second resolution matters most; anything past ten seconds is
// a stall regardless of the exact value.
var stageBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// Metrics bundles the instruments for the whole daemon. Instances are safe
// for concurrent use; the OTel instruments synchronise internally.
type Metrics struct {
	// Pipeline stage latencies.

	// STTDuration: transcribing one utterance.
	STTDuration metric.Float64Histogram

	// LLMDuration: one model generation call.
	LLMDuration metric.Float64Histogram

	// TTSDuration: synthesising and playing one response.
	TTSDuration metric.Float64Histogram

	// InteractionDuration: utterance close through end of spoken response.
	InteractionDuration metric.Float64Histogram

	// ToolDuration: one tool execution.
	ToolDuration metric.Float64Histogram

	// Counters. Attribute keys are part of the dashboard contract:
	// provider/kind/status on provider counters, tool/status on ToolCalls,
	// status on Utterances, outcome on Interactions.

	ProviderRequests metric.Int64Counter
	ToolCalls        metric.Int64Counter
	Utterances       metric.Int64Counter
	Interactions     metric.Int64Counter
	ProviderErrors   metric.Int64Counter

	// Gauges.

	// ActiveTimers is the number of countdown timers currently running.
	ActiveTimers metric.Int64UpDownCounter

	// Speaking holds 1 while a spoken response is playing, 0 otherwise.
	Speaking metric.Int64UpDownCounter

	// HTTPRequestDuration: request latency recorded by [Middleware], with
	// method and path attributes.
	HTTPRequestDuration metric.Float64Histogram
}

// instrumentSet accumulates creation errors so NewMetrics reads as one flat
// literal instead of a ladder of error checks.
type instrumentSet struct {
	meter metric.Meter
	errs  []error
}

func (s *instrumentSet) histogram(name, desc string, buckets ...float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{
		metric.WithDescription(desc),
		metric.WithUnit("s"),
	}
	if len(buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := s.meter.Float64Histogram(name, opts...)
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("observe: instrument %s: %w", name, err))
	}
	return h
}

func (s *instrumentSet) counter(name, desc string) metric.Int64Counter {
	c, err := s.meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("observe: instrument %s: %w", name, err))
	}
	return c
}

func (s *instrumentSet) gauge(name, desc string) metric.Int64UpDownCounter {
	g, err := s.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("observe: instrument %s: %w", name, err))
	}
	return g
}

// NewMetrics creates every instrument on a meter from mp. All creation
// failures are reported together.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	set := instrumentSet{meter: mp.Meter(scopeName)}
	m := &Metrics{
		STTDuration:         set.histogram("auricle.stt.duration", "Time transcribing one utterance.", stageBuckets...),
		LLMDuration:         set.histogram("auricle.llm.duration", "Time for one model generation.", stageBuckets...),
		TTSDuration:         set.histogram("auricle.tts.duration", "Time synthesising and playing one response.", stageBuckets...),
		InteractionDuration: set.histogram("auricle.interaction.duration", "Utterance close through end of spoken response.", stageBuckets...),
		ToolDuration:        set.histogram("auricle.tool.duration", "Time running one tool.", stageBuckets...),
		ProviderRequests:    set.counter("auricle.provider.requests", "Provider API requests by provider, kind, and status."),
		ToolCalls:           set.counter("auricle.tool.calls", "Tool invocations by tool name and status."),
		Utterances:          set.counter("auricle.segment.utterances", "Segmented utterances by status."),
		Interactions:        set.counter("auricle.assistant.interactions", "Handled transcripts by outcome."),
		ProviderErrors:      set.counter("auricle.provider.errors", "Provider failures by provider and kind."),
		ActiveTimers:        set.gauge("auricle.active_timers", "Countdown timers currently running."),
		Speaking:            set.gauge("auricle.speaking", "1 while a spoken response is playing."),
		HTTPRequestDuration: set.histogram("auricle.http.request.duration", "HTTP request latency by method and path."),
	}
	if err := errors.Join(set.errs...); err != nil {
		return nil, err
	}
	return m, nil
}

var (
	defaultM    *Metrics
	defaultOnce sync.Once
)

// DefaultMetrics returns the shared instance, built on first use from the
// global meter provider. Creation cannot fail against the global provider;
// a failure here panics rather than returning a half-built set.
func DefaultMetrics() *Metrics {
	defaultOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic(fmt.Sprintf("observe: default metrics: %v", err))
		}
		defaultM = m
	})
	return defaultM
}

// RecordProviderRequest counts one provider call with the standard
// provider/kind/status attributes.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordToolCall counts one tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	))
}

// RecordUtterance counts one segmented utterance by status ("emitted" or
// "discarded").
func (m *Metrics) RecordUtterance(ctx context.Context, status string) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}

// RecordInteraction counts one handled transcript by outcome ("no_wakeword",
// "fast_path", "model_intent", "model_chat", "fallback", "error").
func (m *Metrics) RecordInteraction(ctx context.Context, outcome string) {
	m.Interactions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordProviderError counts one provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	))
}
