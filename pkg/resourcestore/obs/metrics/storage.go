package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendant/simple-resource/pkg/resourcestore"
)

// StorageMetrics holds Prometheus collectors for gateway calls.
type StorageMetrics struct {
	bytes   *prometheus.CounterVec
	ops     *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// StorageObserver is the minimal interface implemented by StorageMetrics.
type StorageObserver interface {
	Observe(backend, op string, bytes int64, err error, dur time.Duration)
}

// NewStorageMetrics registers storage metrics on reg. Calling it again with
// the same registry returns collectors backed by the first registration.
func NewStorageMetrics(reg prometheus.Registerer) *StorageMetrics {
	bytes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "bytes_total",
		Help:      "Total bytes written or read by storage operations.",
	}, []string{"backend", "op"})
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "ops_total",
		Help:      "Total number of storage operations by result.",
	}, []string{"backend", "op", "result"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "op_duration_seconds",
		Help:      "Histogram of storage operation durations in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"backend", "op"})

	return &StorageMetrics{
		bytes:   register(reg, bytes),
		ops:     register(reg, ops),
		latency: register(reg, latency),
	}
}

// register adds c to reg, or returns the collector already registered under
// the same descriptor so repeated constructors share one set of series.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// Observe records one gateway call. result is "ok", "not_found" or "error".
func (m *StorageMetrics) Observe(backend, op string, bytes int64, err error, dur time.Duration) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, resourcestore.ErrNotFound):
		result = "not_found"
	default:
		result = "error"
	}
	if bytes > 0 {
		m.bytes.WithLabelValues(backend, op).Add(float64(bytes))
	}
	m.ops.WithLabelValues(backend, op, result).Inc()
	m.latency.WithLabelValues(backend, op).Observe(dur.Seconds())
}

// instrumented wraps a Gateway and reports every call to an observer.
type instrumented struct {
	next     resourcestore.Gateway
	backend  string
	observer StorageObserver
}

// Instrument decorates gw so each call is observed under the backend label.
func Instrument(gw resourcestore.Gateway, backend string, observer StorageObserver) resourcestore.Gateway {
	return &instrumented{next: gw, backend: backend, observer: observer}
}

func (g *instrumented) ListPage(ctx context.Context, prefix, token string) (resourcestore.Page, error) {
	start := time.Now()
	page, err := g.next.ListPage(ctx, prefix, token)
	g.observer.Observe(g.backend, "list", 0, err, time.Since(start))
	return page, err
}

func (g *instrumented) Get(ctx context.Context, key string) (*resourcestore.Object, error) {
	start := time.Now()
	obj, err := g.next.Get(ctx, key)
	var size int64
	if obj != nil {
		size = obj.Size
	}
	g.observer.Observe(g.backend, "get", size, err, time.Since(start))
	return obj, err
}

func (g *instrumented) Put(ctx context.Context, key string, data []byte, contentType string) error {
	start := time.Now()
	err := g.next.Put(ctx, key, data, contentType)
	g.observer.Observe(g.backend, "put", int64(len(data)), err, time.Since(start))
	return err
}

func (g *instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := g.next.Delete(ctx, key)
	g.observer.Observe(g.backend, "delete", 0, err, time.Since(start))
	return err
}

func (g *instrumented) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := g.next.Exists(ctx, key)
	g.observer.Observe(g.backend, "exists", 0, err, time.Since(start))
	return ok, err
}

func (g *instrumented) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	start := time.Now()
	link, err := g.next.Presign(ctx, key, ttl)
	g.observer.Observe(g.backend, "presign", 0, err, time.Since(start))
	return link, err
}
