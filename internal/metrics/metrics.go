// Package metrics exposes workflow counters in Prometheus text format
// without pulling in the full client library.
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"autosocioly/internal/bus"
)

// Counter is a monotonically increasing value.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that moves in both directions.
type Gauge struct {
	name  string
	help  string
	value atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks a value distribution over fixed buckets.
type Histogram struct {
	name    string
	help    string
	mu      sync.Mutex
	count   int64
	sum     float64
	bounds  []float64
	buckets []int64
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.buckets[i]++
		}
	}
}

// Registry holds the workflow's metrics and renders them as a
// Prometheus scrape target.
type Registry struct {
	mu         sync.Mutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	started    time.Time

	SessionsActive *Gauge
	SessionsTotal  *Counter
	DraftsTotal    *Counter
	DraftFallbacks *Counter
	PostsSucceeded *Counter
	PostsFailed    *Counter
	PostsSimulated *Counter
	PostingLatency *Histogram
}

func NewRegistry() *Registry {
	r := &Registry{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
		started:    time.Now(),
	}
	r.SessionsActive = r.gauge("autosocioly_sessions_active", "Sessions not yet in a terminal state")
	r.SessionsTotal = r.counter("autosocioly_sessions_total", "Sessions created")
	r.DraftsTotal = r.counter("autosocioly_drafts_total", "Platform drafts generated")
	r.DraftFallbacks = r.counter("autosocioly_draft_fallbacks_total", "Drafts degraded to the deterministic fallback")
	r.PostsSucceeded = r.counter("autosocioly_posts_succeeded_total", "Platform dispatches that published")
	r.PostsFailed = r.counter("autosocioly_posts_failed_total", "Platform dispatches that failed")
	r.PostsSimulated = r.counter("autosocioly_posts_simulated_total", "Dispatches answered by a synthesized success")
	r.PostingLatency = r.histogram("autosocioly_posting_latency_seconds", "Wall time of a confirm dispatch batch",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 30, 60})
	return r
}

func (r *Registry) counter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	c := &Counter{name: name, help: help}
	r.counters[name] = c
	return c
}

func (r *Registry) gauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[name]; ok {
		return g
	}
	g := &Gauge{name: name, help: help}
	r.gauges[name] = g
	return g
}

func (r *Registry) histogram(name, help string, bounds []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[name]; ok {
		return h
	}
	sorted := append([]float64(nil), bounds...)
	sort.Float64s(sorted)
	// The exposition format requires a +Inf bucket equal to _count.
	if len(sorted) == 0 || !math.IsInf(sorted[len(sorted)-1], 1) {
		sorted = append(sorted, math.Inf(1))
	}
	h := &Histogram{name: name, help: help, bounds: sorted, buckets: make([]int64, len(sorted))}
	r.histograms[name] = h
	return h
}

// ObserveBus wires the registry to workflow events so components don't
// need a metrics dependency to be counted.
func (r *Registry) ObserveBus(b *bus.Bus) {
	b.Subscribe(bus.EventSessionCreated, func(bus.Event) {
		r.SessionsTotal.Inc()
		r.SessionsActive.Inc()
	})
	for _, terminal := range []string{bus.EventSessionPosted, bus.EventSessionCancelled, bus.EventSessionFailed} {
		b.Subscribe(terminal, func(bus.Event) { r.SessionsActive.Dec() })
	}
	dispatch := func(e bus.Event) {
		if n, ok := e.Payload["succeeded"].(int); ok {
			r.PostsSucceeded.Add(int64(n))
		}
		if n, ok := e.Payload["failed"].(int); ok {
			r.PostsFailed.Add(int64(n))
		}
		if d, ok := e.Payload["duration_s"].(float64); ok {
			r.PostingLatency.Observe(d)
		}
	}
	b.Subscribe(bus.EventSessionPosted, dispatch)
	b.Subscribe(bus.EventSessionFailed, dispatch)
	b.Subscribe(bus.EventSessionAwaiting, func(e bus.Event) {
		if platforms, ok := e.Payload["platforms"].([]string); ok {
			r.DraftsTotal.Add(int64(len(platforms)))
		}
	})
	b.Subscribe(bus.EventDraftFallback, func(bus.Event) { r.DraftFallbacks.Inc() })
	b.Subscribe(bus.EventPostSimulated, func(bus.Event) { r.PostsSimulated.Inc() })
}

// Handler renders the registry in Prometheus exposition format.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder
		fmt.Fprintf(&sb, "# HELP autosocioly_uptime_seconds Time since start in seconds\n")
		fmt.Fprintf(&sb, "# TYPE autosocioly_uptime_seconds gauge\n")
		fmt.Fprintf(&sb, "autosocioly_uptime_seconds %d\n", int64(time.Since(r.started).Seconds()))

		r.mu.Lock()
		defer r.mu.Unlock()

		for _, name := range sortedKeys(r.counters) {
			c := r.counters[name]
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", c.name, c.help, c.name, c.name, c.Value())
		}
		for _, name := range sortedKeys(r.gauges) {
			g := r.gauges[name]
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n", g.name, g.help, g.name, g.name, g.Value())
		}
		for _, name := range sortedKeys(r.histograms) {
			h := r.histograms[name]
			h.mu.Lock()
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
			for i, le := range h.bounds {
				label := fmt.Sprintf("%g", le)
				if math.IsInf(le, 1) {
					label = "+Inf"
				}
				fmt.Fprintf(&sb, "%s_bucket{le=%q} %d\n", h.name, label, h.buckets[i])
			}
			fmt.Fprintf(&sb, "%s_count %d\n%s_sum %f\n", h.name, h.count, h.name, h.sum)
			h.mu.Unlock()
		}

		fmt.Fprint(w, sb.String())
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
