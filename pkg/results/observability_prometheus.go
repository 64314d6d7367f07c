package results

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver implements Observer using Prometheus metrics.
// Keys are not used as labels; they are unbounded.
//
// Example:
//
//	observer := results.NewPrometheusObserver("my_service", prometheus.DefaultRegisterer)
//	store := results.NewResultStore(results.WithObserver(observer))
type PrometheusObserver struct {
	readDuration    *prometheus.HistogramVec
	writeDuration   *prometheus.HistogramVec
	writtenBytes    prometheus.Counter
	existsChecks    *prometheus.CounterVec
	lockWait        *prometheus.HistogramVec
	referenceHits   prometheus.Counter
	referenceMisses prometheus.Counter
	errors          *prometheus.CounterVec
}

// NewPrometheusObserver creates a Prometheus observer with the given namespace.
// All metrics will be prefixed with "{namespace}_results_".
func NewPrometheusObserver(namespace string, registerer prometheus.Registerer) *PrometheusObserver {
	if namespace == "" {
		namespace = "resultdock"
	}

	readDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "results",
			Name:      "read_duration_seconds",
			Help:      "Duration of result record reads in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"split", "status"},
	)

	writeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "results",
			Name:      "write_duration_seconds",
			Help:      "Duration of result record writes in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"split", "status"},
	)

	writtenBytes := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "results",
			Name:      "written_bytes_total",
			Help:      "Total bytes of result records written",
		},
	)

	existsChecks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "results",
			Name:      "exists_checks_total",
			Help:      "Total number of result existence checks",
		},
		[]string{"exists"},
	)

	lockWait := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "results",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for result locks in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"released"},
	)

	referenceHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "results",
			Name:      "reference_cache_hits_total",
			Help:      "Total number of result references served from memory",
		},
	)

	referenceMisses := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "results",
			Name:      "reference_cache_misses_total",
			Help:      "Total number of result references read from storage",
		},
	)

	errors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "results",
			Name:      "errors_total",
			Help:      "Total number of failed result operations",
		},
		[]string{"op"},
	)

	registerer.MustRegister(
		readDuration,
		writeDuration,
		writtenBytes,
		existsChecks,
		lockWait,
		referenceHits,
		referenceMisses,
		errors,
	)

	return &PrometheusObserver{
		readDuration:    readDuration,
		writeDuration:   writeDuration,
		writtenBytes:    writtenBytes,
		existsChecks:    existsChecks,
		lockWait:        lockWait,
		referenceHits:   referenceHits,
		referenceMisses: referenceMisses,
		errors:          errors,
	}
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func (o *PrometheusObserver) OnRead(ctx context.Context, event *ReadEvent) {
	o.readDuration.WithLabelValues(boolLabel(event.Split), statusOf(event.Error)).
		Observe(event.Duration.Seconds())
	if event.Error != nil {
		o.errors.WithLabelValues("read").Inc()
	}
}

func (o *PrometheusObserver) OnWrite(ctx context.Context, event *WriteEvent) {
	o.writeDuration.WithLabelValues(boolLabel(event.Split), statusOf(event.Error)).
		Observe(event.Duration.Seconds())
	if event.Error != nil {
		o.errors.WithLabelValues("write").Inc()
		return
	}
	o.writtenBytes.Add(float64(event.Bytes))
}

func (o *PrometheusObserver) OnExists(ctx context.Context, event *ExistsEvent) {
	o.existsChecks.WithLabelValues(boolLabel(event.Exists)).Inc()
}

func (o *PrometheusObserver) OnLockWait(ctx context.Context, event *LockWaitEvent) {
	o.lockWait.WithLabelValues(boolLabel(event.Released)).Observe(event.Waited.Seconds())
	if event.Error != nil {
		o.errors.WithLabelValues("lock_wait").Inc()
	}
}

func (o *PrometheusObserver) OnReferenceCache(ctx context.Context, event *ReferenceCacheEvent) {
	if event.Hit {
		o.referenceHits.Inc()
	} else {
		o.referenceMisses.Inc()
	}
}
