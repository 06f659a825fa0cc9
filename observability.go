package objectbind

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/objectbind/objectbind"
	meterName  = "github.com/objectbind/objectbind"
)

// queryMetrics holds the OpenTelemetry instruments a Store records against.
type queryMetrics struct {
	RetrievalCount    metric.Int64Counter
	RetrievalDuration metric.Float64Histogram
	RetrievalErrors   metric.Int64Counter
	RetryCount        metric.Int64Counter
}

// observabilityConfig is a Store's logging/tracing/metrics configuration. A
// zero-value config disables every signal; Store never fails to operate
// without one configured.
type observabilityConfig struct {
	Logger *slog.Logger
	Tracer trace.Tracer
	Meter  metric.Meter

	metrics *queryMetrics
}

func defaultObservabilityConfig() *observabilityConfig {
	return &observabilityConfig{}
}

func (o *observabilityConfig) initMetrics() error {
	if o.Meter == nil {
		return nil
	}
	count, err := o.Meter.Int64Counter("objectbind.retrieval.count",
		metric.WithDescription("number of query retrievals executed"))
	if err != nil {
		return err
	}
	duration, err := o.Meter.Float64Histogram("objectbind.retrieval.duration",
		metric.WithDescription("retrieval latency in milliseconds"),
		metric.WithUnit("ms"))
	if err != nil {
		return err
	}
	errs, err := o.Meter.Int64Counter("objectbind.retrieval.errors",
		metric.WithDescription("number of failed retrievals"))
	if err != nil {
		return err
	}
	retries, err := o.Meter.Int64Counter("objectbind.retrieval.retries",
		metric.WithDescription("number of transaction retry attempts"))
	if err != nil {
		return err
	}
	o.metrics = &queryMetrics{
		RetrievalCount:    count,
		RetrievalDuration: duration,
		RetrievalErrors:   errs,
		RetryCount:        retries,
	}
	return nil
}

// instrument wraps one retrieval/mutation call with tracing, structured
// logging and metrics, mirroring the teacher's Session.instrument wrapper.
func (o *observabilityConfig) instrument(ctx context.Context, spanName, operation string, fn func() error) error {
	var span trace.Span
	if o.Tracer != nil {
		ctx, span = o.Tracer.Start(ctx, spanName)
		defer span.End()
	}

	start := time.Now()
	err := fn()
	duration := time.Since(start)

	if span != nil {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("objectbind.operation", operation))
	}

	if o.Logger != nil {
		attrs := []any{"operation", operation, "duration_ms", duration.Milliseconds()}
		if err != nil {
			o.Logger.ErrorContext(ctx, "objectbind retrieval failed", append(attrs, "error", err)...)
		} else {
			o.Logger.DebugContext(ctx, "objectbind retrieval", attrs...)
		}
	}

	if o.metrics != nil {
		attrSet := metric.WithAttributes(attribute.String("objectbind.operation", operation))
		o.metrics.RetrievalCount.Add(ctx, 1, attrSet)
		o.metrics.RetrievalDuration.Record(ctx, float64(duration.Milliseconds()), attrSet)
		if err != nil {
			o.metrics.RetrievalErrors.Add(ctx, 1, attrSet)
		}
	}

	return err
}

func (o *observabilityConfig) recordRetry(ctx context.Context, operation string) {
	if o.metrics != nil {
		o.metrics.RetryCount.Add(ctx, 1, metric.WithAttributes(attribute.String("objectbind.operation", operation)))
	}
	if o.Logger != nil {
		o.Logger.WarnContext(ctx, "objectbind retrying transient backend error", "operation", operation)
	}
}
