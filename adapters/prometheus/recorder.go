// Package prometheus exports booking service metrics through
// prometheus/client_golang.
package prometheus

import (
	"context"
	"strings"
	"sync"

	"github.com/goliatone/go-bookings/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultLabels is the fixed label schema every booking metric carries. Tags
// outside it are dropped and missing ones are exported empty, so one name
// always maps to one collector.
var DefaultLabels = []string{"operation", "status", "provider_id", "event_kind", "outcome", "job_id", "error_code", "detail"}

// Recorder implements core.MetricsRecorder. Metric vectors are created on
// first use per sanitized name.
type Recorder struct {
	namespace string
	buckets   []float64
	labels    []string
	factory   promauto.Factory

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

type Option func(*Recorder)

func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		r.namespace = sanitize(namespace)
	}
}

func WithLabels(labels ...string) Option {
	return func(r *Recorder) {
		out := make([]string, 0, len(labels))
		for _, label := range labels {
			if label = sanitize(label); label != "" {
				out = append(out, label)
			}
		}
		if len(out) > 0 {
			r.labels = out
		}
	}
}

func WithBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

// NewRecorder registers metrics with registerer; a nil registerer uses the
// default prometheus registry.
func NewRecorder(registerer prometheus.Registerer, opts ...Option) *Recorder {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		buckets:    []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		labels:     append([]string(nil), DefaultLabels...),
		factory:    promauto.With(registerer),
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value <= 0 {
		return
	}
	name = sanitize(name)
	if name == "" {
		return
	}
	values := r.labelValues(tags)

	r.mu.Lock()
	vec, ok := r.counters[name]
	if !ok {
		vec = r.factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: r.namespace,
			Name:      name,
			Help:      "Booking reconciliation counter " + name,
		}, r.labels)
		r.counters[name] = vec
	}
	r.mu.Unlock()

	vec.WithLabelValues(values...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	name = sanitize(name)
	if name == "" {
		return
	}
	values := r.labelValues(tags)

	r.mu.Lock()
	vec, ok := r.histograms[name]
	if !ok {
		vec = r.factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: r.namespace,
			Name:      name,
			Help:      "Booking reconciliation histogram " + name,
			Buckets:   r.buckets,
		}, r.labels)
		r.histograms[name] = vec
	}
	r.mu.Unlock()

	vec.WithLabelValues(values...).Observe(value)
}

func (r *Recorder) labelValues(tags map[string]string) []string {
	byLabel := make(map[string]string, len(tags))
	for key, value := range tags {
		if label := sanitize(key); label != "" {
			byLabel[label] = value
		}
	}
	values := make([]string, len(r.labels))
	for i, label := range r.labels {
		values[i] = byLabel[label]
	}
	return values
}

// sanitize maps dotted names such as "bookings.reconcile.total" onto the
// prometheus name alphabet.
func sanitize(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

var _ core.MetricsRecorder = (*Recorder)(nil)
