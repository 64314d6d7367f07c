package results

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// OTelObserver implements Observer using OpenTelemetry for traces and metrics.
//
// Events arrive once an operation has finished, so reads, writes and lock
// waits are recorded as spans backdated to the operation's start. Reference
// resolution and existence probes become events on the span in ctx.
//
// Example:
//
//	tracer := otel.Tracer("resultdock")
//	meter := otel.Meter("resultdock")
//	observer, _ := results.NewOTelObserver(tracer, meter)
//	store := results.NewResultStore(results.WithObserver(observer))
type OTelObserver struct {
	tracer trace.Tracer

	readDuration  metric.Float64Histogram
	writeDuration metric.Float64Histogram
	writtenBytes  metric.Int64Counter
	lockWait      metric.Float64Histogram
	cacheHits     metric.Int64Counter
	cacheMisses   metric.Int64Counter
	errors        metric.Int64Counter
}

// NewOTelObserver creates an OpenTelemetry observer.
func NewOTelObserver(tracer trace.Tracer, meter metric.Meter) (*OTelObserver, error) {
	readDuration, err := meter.Float64Histogram(
		"resultdock.read.duration",
		metric.WithDescription("Duration of result record reads in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create read duration histogram: %w", err)
	}

	writeDuration, err := meter.Float64Histogram(
		"resultdock.write.duration",
		metric.WithDescription("Duration of result record writes in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create write duration histogram: %w", err)
	}

	writtenBytes, err := meter.Int64Counter(
		"resultdock.write.bytes",
		metric.WithDescription("Bytes of result records written"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create written bytes counter: %w", err)
	}

	lockWait, err := meter.Float64Histogram(
		"resultdock.lock.wait",
		metric.WithDescription("Time spent waiting for result locks in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create lock wait histogram: %w", err)
	}

	cacheHits, err := meter.Int64Counter(
		"resultdock.reference.cache.hits",
		metric.WithDescription("Number of result references served from memory"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache hits counter: %w", err)
	}

	cacheMisses, err := meter.Int64Counter(
		"resultdock.reference.cache.misses",
		metric.WithDescription("Number of result references read from storage"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache misses counter: %w", err)
	}

	errors, err := meter.Int64Counter(
		"resultdock.errors",
		metric.WithDescription("Number of failed result operations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create errors counter: %w", err)
	}

	return &OTelObserver{
		tracer:        tracer,
		readDuration:  readDuration,
		writeDuration: writeDuration,
		writtenBytes:  writtenBytes,
		lockWait:      lockWait,
		cacheHits:     cacheHits,
		cacheMisses:   cacheMisses,
		errors:        errors,
	}, nil
}

// recordSpan emits a finished span covering the last d.
func (o *OTelObserver) recordSpan(ctx context.Context, name string, d time.Duration, err error, attrs ...attribute.KeyValue) {
	end := time.Now()
	_, span := o.tracer.Start(ctx, name,
		trace.WithTimestamp(end.Add(-d)),
		trace.WithAttributes(attrs...),
	)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(end))
}

func (o *OTelObserver) OnRead(ctx context.Context, event *ReadEvent) {
	o.recordSpan(ctx, "result.read", event.Duration, event.Error,
		attribute.String("result.key", event.Key),
		attribute.Bool("result.split", event.Split),
	)

	o.readDuration.Record(ctx, event.Duration.Seconds(), metric.WithAttributes(
		attribute.Bool("split", event.Split),
		attribute.Bool("success", event.Error == nil),
	))
	if event.Error != nil {
		o.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "read")))
	}
}

func (o *OTelObserver) OnWrite(ctx context.Context, event *WriteEvent) {
	o.recordSpan(ctx, "result.write", event.Duration, event.Error,
		attribute.String("result.key", event.Key),
		attribute.Bool("result.split", event.Split),
		attribute.Int("result.bytes", event.Bytes),
	)

	o.writeDuration.Record(ctx, event.Duration.Seconds(), metric.WithAttributes(
		attribute.Bool("split", event.Split),
		attribute.Bool("success", event.Error == nil),
	))
	if event.Error != nil {
		o.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "write")))
		return
	}
	o.writtenBytes.Add(ctx, int64(event.Bytes))
}

func (o *OTelObserver) OnExists(ctx context.Context, event *ExistsEvent) {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.AddEvent("result.exists", trace.WithAttributes(
			attribute.String("result.key", event.Key),
			attribute.Bool("result.exists", event.Exists),
		))
	}
}

func (o *OTelObserver) OnLockWait(ctx context.Context, event *LockWaitEvent) {
	o.recordSpan(ctx, "result.lock.wait", event.Waited, event.Error,
		attribute.String("result.key", event.Key),
		attribute.Bool("lock.released", event.Released),
	)

	o.lockWait.Record(ctx, event.Waited.Seconds(), metric.WithAttributes(
		attribute.Bool("released", event.Released),
	))
	if event.Error != nil {
		o.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "lock_wait")))
	}
}

func (o *OTelObserver) OnReferenceCache(ctx context.Context, event *ReferenceCacheEvent) {
	if event.Hit {
		o.cacheHits.Add(ctx, 1)
	} else {
		o.cacheMisses.Add(ctx, 1)
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.AddEvent("result.reference", trace.WithAttributes(
			attribute.String("result.storage_key", event.StorageKey),
			attribute.Bool("cache.hit", event.Hit),
		))
	}
}
