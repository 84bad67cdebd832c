// Package metrics implements a small dependency-free metrics registry
// with Prometheus text-format exposition.
package metrics

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrLabelCountMismatch is returned when the number of label values doesn't
// match the metric's label names.
var ErrLabelCountMismatch = errors.New("label count mismatch")

// ErrNegativeCounterValue is returned when adding a negative value to a counter.
var ErrNegativeCounterValue = errors.New("counter cannot be decreased")

// ErrDuplicateMetric is returned when registering a metric name twice.
var ErrDuplicateMetric = errors.New("duplicate metric name")

// atomicFloat64 stores a float64 as uint64 bits for atomic access.
type atomicFloat64 struct {
	bits uint64
}

func (a *atomicFloat64) Load() float64 {
	return math.Float64frombits(atomic.LoadUint64(&a.bits))
}

func (a *atomicFloat64) Add(delta float64) {
	for {
		old := atomic.LoadUint64(&a.bits)
		next := math.Float64frombits(old) + delta
		if atomic.CompareAndSwapUint64(&a.bits, old, math.Float64bits(next)) {
			return
		}
	}
}

func (a *atomicFloat64) Store(v float64) {
	atomic.StoreUint64(&a.bits, math.Float64bits(v))
}

// MetricType identifies the kind of a metric.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// Sample is a single exposition sample with resolved labels.
type Sample struct {
	Name   string
	Labels map[string]string
	Value  float64
}

// Metric is implemented by all metric types held in a Registry.
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	Collect() []Sample
}

// labeled is the shared labelled-series storage for counters and gauges.
type labeled struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	series     map[string]*series
}

type series struct {
	labels map[string]string
	value  atomicFloat64
}

func (l *labeled) get(values []string) (*series, error) {
	if len(values) != len(l.labelNames) {
		return nil, fmt.Errorf("%w: %s expected %d labels, got %d",
			ErrLabelCountMismatch, l.name, len(l.labelNames), len(values))
	}

	key := strings.Join(values, "\x00")
	l.mu.RLock()
	s, ok := l.series[key]
	l.mu.RUnlock()
	if ok {
		return s, nil
	}

	labels := make(map[string]string, len(l.labelNames))
	for i, name := range l.labelNames {
		labels[name] = values[i]
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok = l.series[key]; !ok {
		s = &series{labels: labels}
		l.series[key] = s
	}
	return s, nil
}

func (l *labeled) collect(name string) []Sample {
	l.mu.RLock()
	defer l.mu.RUnlock()

	samples := make([]Sample, 0, len(l.series))
	for _, s := range l.series {
		samples = append(samples, Sample{Name: name, Labels: s.labels, Value: s.value.Load()})
	}
	return samples
}

// Counter is a monotonically increasing metric.
type Counter struct {
	labeled
}

func newCounter(name, help string, labelNames []string) *Counter {
	return &Counter{labeled{name: name, help: help, labelNames: labelNames, series: make(map[string]*series)}}
}

// Name returns the metric name.
func (c *Counter) Name() string { return c.name }

// Help returns the help text.
func (c *Counter) Help() string { return c.help }

// Type returns the metric type.
func (c *Counter) Type() MetricType { return MetricTypeCounter }

// Collect returns all samples.
func (c *Counter) Collect() []Sample { return c.collect(c.name) }

// WithLabels returns the counter series for the given label values.
func (c *Counter) WithLabels(values ...string) (*CounterVec, error) {
	s, err := c.get(values)
	if err != nil {
		return nil, err
	}
	return &CounterVec{s: s}, nil
}

// Inc increments an unlabelled counter by 1.
func (c *Counter) Inc() error { return c.Add(1) }

// Add adds delta to an unlabelled counter. Negative deltas are rejected.
func (c *Counter) Add(delta float64) error {
	vec, err := c.WithLabels()
	if err != nil {
		return err
	}
	return vec.Add(delta)
}

// CounterVec is a counter bound to one label combination.
type CounterVec struct {
	s *series
}

// Inc increments the series by 1.
func (v *CounterVec) Inc() error { return v.Add(1) }

// Add adds delta to the series. Negative deltas are rejected.
func (v *CounterVec) Add(delta float64) error {
	if delta < 0 {
		return ErrNegativeCounterValue
	}
	v.s.value.Add(delta)
	return nil
}

// Gauge is a metric that can go up and down.
type Gauge struct {
	labeled
}

func newGauge(name, help string, labelNames []string) *Gauge {
	return &Gauge{labeled{name: name, help: help, labelNames: labelNames, series: make(map[string]*series)}}
}

// Name returns the metric name.
func (g *Gauge) Name() string { return g.name }

// Help returns the help text.
func (g *Gauge) Help() string { return g.help }

// Type returns the metric type.
func (g *Gauge) Type() MetricType { return MetricTypeGauge }

// Collect returns all samples.
func (g *Gauge) Collect() []Sample { return g.collect(g.name) }

// WithLabels returns the gauge series for the given label values.
func (g *Gauge) WithLabels(values ...string) (*GaugeVec, error) {
	s, err := g.get(values)
	if err != nil {
		return nil, err
	}
	return &GaugeVec{s: s}, nil
}

// Set sets an unlabelled gauge.
func (g *Gauge) Set(v float64) error {
	vec, err := g.WithLabels()
	if err != nil {
		return err
	}
	vec.Set(v)
	return nil
}

// Inc increments an unlabelled gauge by 1.
func (g *Gauge) Inc() error { return g.Add(1) }

// Dec decrements an unlabelled gauge by 1.
func (g *Gauge) Dec() error { return g.Add(-1) }

// Add adds delta to an unlabelled gauge.
func (g *Gauge) Add(delta float64) error {
	vec, err := g.WithLabels()
	if err != nil {
		return err
	}
	vec.Add(delta)
	return nil
}

// GaugeVec is a gauge bound to one label combination.
type GaugeVec struct {
	s *series
}

// Set sets the series value.
func (v *GaugeVec) Set(value float64) { v.s.value.Store(value) }

// Inc increments the series by 1.
func (v *GaugeVec) Inc() { v.Add(1) }

// Dec decrements the series by 1.
func (v *GaugeVec) Dec() { v.Add(-1) }

// Add adds delta to the series.
func (v *GaugeVec) Add(delta float64) { v.s.value.Add(delta) }

// Histogram tracks the distribution of observed values in cumulative buckets.
type Histogram struct {
	name       string
	help       string
	labelNames []string
	buckets    []float64
	mu         sync.RWMutex
	series     map[string]*histogramSeries
}

type histogramSeries struct {
	labels  map[string]string
	buckets []float64
	counts  []uint64
	sum     atomicFloat64
	count   uint64
}

func newHistogram(name, help string, buckets []float64, labelNames []string) *Histogram {
	sorted := make([]float64, len(buckets))
	copy(sorted, buckets)
	sort.Float64s(sorted)
	if len(sorted) == 0 || !math.IsInf(sorted[len(sorted)-1], 1) {
		sorted = append(sorted, math.Inf(1))
	}

	return &Histogram{
		name:       name,
		help:       help,
		labelNames: labelNames,
		buckets:    sorted,
		series:     make(map[string]*histogramSeries),
	}
}

// Name returns the metric name.
func (h *Histogram) Name() string { return h.name }

// Help returns the help text.
func (h *Histogram) Help() string { return h.help }

// Type returns the metric type.
func (h *Histogram) Type() MetricType { return MetricTypeHistogram }

// WithLabels returns the histogram series for the given label values.
func (h *Histogram) WithLabels(values ...string) (*HistogramVec, error) {
	if len(values) != len(h.labelNames) {
		return nil, fmt.Errorf("%w: %s expected %d labels, got %d",
			ErrLabelCountMismatch, h.name, len(h.labelNames), len(values))
	}

	key := strings.Join(values, "\x00")
	h.mu.RLock()
	s, ok := h.series[key]
	h.mu.RUnlock()

	if !ok {
		labels := make(map[string]string, len(h.labelNames))
		for i, name := range h.labelNames {
			labels[name] = values[i]
		}

		h.mu.Lock()
		if s, ok = h.series[key]; !ok {
			s = &histogramSeries{
				labels:  labels,
				buckets: h.buckets,
				counts:  make([]uint64, len(h.buckets)),
			}
			h.series[key] = s
		}
		h.mu.Unlock()
	}

	return &HistogramVec{s: s}, nil
}

// Observe records a value in an unlabelled histogram.
func (h *Histogram) Observe(value float64) error {
	vec, err := h.WithLabels()
	if err != nil {
		return err
	}
	vec.Observe(value)
	return nil
}

// Collect returns bucket, sum and count samples for every series.
func (h *Histogram) Collect() []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()

	samples := make([]Sample, 0, (len(h.buckets)+2)*len(h.series))
	for _, s := range h.series {
		cumulative := uint64(0)
		for i, bound := range s.buckets {
			cumulative += atomic.LoadUint64(&s.counts[i])
			labels := make(map[string]string, len(s.labels)+1)
			for k, v := range s.labels {
				labels[k] = v
			}
			if math.IsInf(bound, 1) {
				labels["le"] = "+Inf"
			} else {
				labels["le"] = formatFloat(bound)
			}
			samples = append(samples, Sample{Name: h.name + "_bucket", Labels: labels, Value: float64(cumulative)})
		}
		samples = append(samples, Sample{Name: h.name + "_sum", Labels: s.labels, Value: s.sum.Load()})
		samples = append(samples, Sample{Name: h.name + "_count", Labels: s.labels, Value: float64(atomic.LoadUint64(&s.count))})
	}
	return samples
}

// HistogramVec is a histogram bound to one label combination.
type HistogramVec struct {
	s *histogramSeries
}

// Observe records a value.
func (v *HistogramVec) Observe(value float64) {
	for i, bound := range v.s.buckets {
		if value <= bound {
			atomic.AddUint64(&v.s.counts[i], 1)
			break
		}
	}
	v.s.sum.Add(value)
	atomic.AddUint64(&v.s.count, 1)
}

// Registry holds registered metrics and serves the exposition endpoint.
type Registry struct {
	mu      sync.RWMutex
	metrics []Metric
	names   map[string]struct{}
}

// NewRegistry creates an empty metric registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// NewCounter creates and registers a counter.
func (r *Registry) NewCounter(name, help string, labels ...string) *Counter {
	c := newCounter(name, help, labels)
	r.register(c)
	return c
}

// NewGauge creates and registers a gauge.
func (r *Registry) NewGauge(name, help string, labels ...string) *Gauge {
	g := newGauge(name, help, labels)
	r.register(g)
	return g
}

// NewHistogram creates and registers a histogram with the given buckets.
func (r *Registry) NewHistogram(name, help string, buckets []float64, labels ...string) *Histogram {
	h := newHistogram(name, help, buckets, labels)
	r.register(h)
	return h
}

// register panics on duplicate names; duplicates would produce invalid
// Prometheus output.
func (r *Registry) register(m Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.names[m.Name()]; exists {
		panic(fmt.Sprintf("%s: %s", ErrDuplicateMetric, m.Name()))
	}
	r.names[m.Name()] = struct{}{}
	r.metrics = append(r.metrics, m)
}

// Handler returns an http.Handler serving the text exposition format.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.mu.RLock()
		metrics := make([]Metric, len(r.metrics))
		copy(metrics, r.metrics)
		r.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		for _, m := range metrics {
			writeMetric(w, m)
		}
	})
}

func writeMetric(w http.ResponseWriter, m Metric) {
	samples := m.Collect()
	if len(samples) == 0 {
		return
	}

	_, _ = fmt.Fprintf(w, "# HELP %s %s\n", m.Name(), escapeHelp(m.Help()))
	_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", m.Name(), m.Type())
	for _, s := range samples {
		if len(s.Labels) == 0 {
			_, _ = fmt.Fprintf(w, "%s %s\n", s.Name, formatFloat(s.Value))
		} else {
			_, _ = fmt.Fprintf(w, "%s{%s} %s\n", s.Name, formatLabels(s.Labels), formatFloat(s.Value))
		}
	}
}

// formatLabels renders labels as key="value",... with deterministic ordering.
func formatLabels(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, escapeLabelValue(labels[k]))
	}
	return strings.Join(parts, ",")
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	if math.IsInf(v, 1) {
		return "+Inf"
	}
	if math.IsInf(v, -1) {
		return "-Inf"
	}
	s := fmt.Sprintf("%g", v)
	if v == float64(int64(v)) && !strings.Contains(s, ".") && !strings.Contains(s, "e") {
		return fmt.Sprintf("%.0f", v)
	}
	return s
}

func escapeHelp(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	return strings.ReplaceAll(s, "\n", "\\n")
}

func escapeLabelValue(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	return strings.ReplaceAll(s, "\n", "\\n")
}

// DefaultBuckets are the default request-duration buckets in seconds.
var DefaultBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}
