package observe

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// quietPaths are endpoints polled by scrapers and probes; their completion
// logs go to Debug so they do not drown out the pipeline logs.
var quietPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// Middleware wraps handlers with request telemetry: it continues the W3C
// trace from incoming headers (or starts a fresh one), sets the
// X-Correlation-ID response header from the trace ID, records the request
// into [Metrics.HTTPRequestDuration], and logs completion.
//
// The wrapped writer does not expose Unwrap; handlers that hijack the
// connection (WebSocket upgrades) must mount outside this middleware.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &instrumented{next: next, metrics: m}
	}
}

// instrumented is the handler produced by [Middleware].
type instrumented struct {
	next    http.Handler
	metrics *Metrics
	props   propagation.TraceContext
}

func (h *instrumented) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	ctx := h.props.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := StartSpan(ctx, "HTTP "+r.Method+" "+r.URL.Path,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(r.Method),
			semconv.URLPath(r.URL.Path),
		),
	)
	defer span.End()

	if cid := CorrelationID(ctx); cid != "" {
		w.Header().Set("X-Correlation-ID", cid)
	}
	h.props.Inject(ctx, propagation.HeaderCarrier(w.Header()))

	tap := &statusWriter{ResponseWriter: w, code: http.StatusOK}
	h.next.ServeHTTP(tap, r.WithContext(ctx))

	elapsed := time.Since(started)
	h.metrics.HTTPRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("method", r.Method),
		attribute.String("path", r.URL.Path),
	))
	span.SetAttributes(semconv.HTTPResponseStatusCode(tap.code))

	level := slog.LevelInfo
	if quietPaths[r.URL.Path] {
		level = slog.LevelDebug
	}
	slog.LogAttrs(ctx, level, "request completed",
		slog.String("trace_id", CorrelationID(ctx)),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("remote", r.RemoteAddr),
		slog.Int("status", tap.code),
		slog.Duration("duration", elapsed),
	)
}

// statusWriter records the status code on its way to the client.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
