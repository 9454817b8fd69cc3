// Package metrics is a minimal metrics registry rendered in the
// Prometheus text exposition format. Counters, gauges, and duration
// histograms cover everything the crawl and parse pipelines report.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuckets are histogram bucket bounds in seconds.
var DefaultBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// metric is anything the registry can render.
type metric interface {
	typeName() string
	render(sb *strings.Builder, name string)
}

// Counter is a monotonically increasing counter.
type Counter struct{ n atomic.Int64 }

func (c *Counter) Inc()         { c.n.Add(1) }
func (c *Counter) Add(d int64)  { c.n.Add(d) }
func (c *Counter) Value() int64 { return c.n.Load() }

func (c *Counter) typeName() string { return "counter" }
func (c *Counter) render(sb *strings.Builder, name string) {
	fmt.Fprintf(sb, "%s %d\n", name, c.Value())
}

// Gauge is a value that moves in both directions.
type Gauge struct{ n atomic.Int64 }

func (g *Gauge) Set(v int64)  { g.n.Store(v) }
func (g *Gauge) Inc()         { g.n.Add(1) }
func (g *Gauge) Dec()         { g.n.Add(-1) }
func (g *Gauge) Value() int64 { return g.n.Load() }

func (g *Gauge) typeName() string { return "gauge" }
func (g *Gauge) render(sb *strings.Builder, name string) {
	fmt.Fprintf(sb, "%s %d\n", name, g.Value())
}

// Histogram accumulates observations into fixed upper-bound buckets.
type Histogram struct {
	mu     sync.Mutex
	bounds []float64
	hits   []uint64
	sum    float64
	total  uint64
}

// Observe records one value into its bucket. Buckets are rendered
// cumulatively; only the first matching bucket is hit here.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.total++
	for i, bound := range h.bounds {
		if v <= bound {
			h.hits[i]++
			return
		}
	}
}

// Since observes the seconds elapsed since t.
func (h *Histogram) Since(t time.Time) { h.Observe(time.Since(t).Seconds()) }

func (h *Histogram) typeName() string { return "histogram" }
func (h *Histogram) render(sb *strings.Builder, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var cum uint64
	for i, bound := range h.bounds {
		cum += h.hits[i]
		fmt.Fprintf(sb, "%s_bucket{le=%q} %d\n", name, trimZeros(bound), cum)
	}
	fmt.Fprintf(sb, "%s_bucket{le=\"+Inf\"} %d\n", name, h.total)
	fmt.Fprintf(sb, "%s_sum %g\n", name, h.sum)
	fmt.Fprintf(sb, "%s_count %d\n", name, h.total)
}

// Registry is a named collection of metrics.
type Registry struct {
	mu      sync.Mutex
	metrics map[string]metric
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{metrics: make(map[string]metric)}
}

// get returns the metric registered under name, creating it with mk on
// first use. A name reused with a different kind returns a fresh,
// unregistered metric so callers never observe a type confusion panic.
func (r *Registry) get(name string, mk func() metric) metric {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.metrics[name]; ok {
		return m
	}
	m := mk()
	r.metrics[name] = m
	return m
}

// Counter returns the named counter, creating it on first use.
func (r *Registry) Counter(name string) *Counter {
	m := r.get(name, func() metric { return &Counter{} })
	if c, ok := m.(*Counter); ok {
		return c
	}
	return &Counter{}
}

// Gauge returns the named gauge, creating it on first use.
func (r *Registry) Gauge(name string) *Gauge {
	m := r.get(name, func() metric { return &Gauge{} })
	if g, ok := m.(*Gauge); ok {
		return g
	}
	return &Gauge{}
}

// Histogram returns the named histogram, creating it on first use. Nil
// buckets means DefaultBuckets.
func (r *Registry) Histogram(name string, buckets []float64) *Histogram {
	m := r.get(name, func() metric {
		if buckets == nil {
			buckets = DefaultBuckets
		}
		bounds := append([]float64(nil), buckets...)
		sort.Float64s(bounds)
		return &Histogram{bounds: bounds, hits: make([]uint64, len(bounds))}
	})
	if h, ok := m.(*Histogram); ok {
		return h
	}
	return &Histogram{bounds: DefaultBuckets, hits: make([]uint64, len(DefaultBuckets))}
}

// Render produces the text exposition of every metric, sorted by name
// for stable output.
func (r *Registry) Render() string {
	r.mu.Lock()
	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	snapshot := make(map[string]metric, len(r.metrics))
	for name, m := range r.metrics {
		snapshot[name] = m
	}
	r.mu.Unlock()
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		m := snapshot[name]
		fmt.Fprintf(&sb, "# TYPE %s %s\n", baseName(name), m.typeName())
		m.render(&sb, name)
	}
	return sb.String()
}

// Handler serves the rendered metrics over HTTP.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(r.Render()))
	})
}

// ServeAsync exposes /metrics on the given port from a background
// goroutine. Serve errors are dropped; metrics are advisory.
func (r *Registry) ServeAsync(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	go func() {
		_ = http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
	}()
}

// WithLabels bakes label pairs into a metric name, Prometheus style.
func WithLabels(name string, kv ...string) string {
	if len(kv) < 2 {
		return name
	}
	pairs := make([]string, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		pairs = append(pairs, fmt.Sprintf("%s=%q", kv[i], kv[i+1]))
	}
	return name + "{" + strings.Join(pairs, ",") + "}"
}

// baseName strips any baked-in label block for the TYPE line.
func baseName(name string) string {
	if i := strings.IndexByte(name, '{'); i >= 0 {
		return name[:i]
	}
	return name
}

func trimZeros(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", v), "0"), ".")
}
