// Package metrics provides a lightweight, Prometheus-compatible metrics
// collector. It outputs text/plain in Prometheus exposition format without
// requiring the heavy prometheus/client_golang dependency.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the global metrics collector.
var Collector = NewMetricsCollector()

// MetricsCollector aggregates counters and gauges.
type MetricsCollector struct {
	counters  sync.Map // name -> *Counter
	gauges    sync.Map // name -> *Gauge
	startTime time.Time
}

// NewMetricsCollector creates a new collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{startTime: time.Now()}
}

// Uptime returns how long the collector has been running.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.value.Add(1) }

// Add increments the counter by n.
func (c *Counter) Add(n int64) { c.value.Add(n) }

// Value returns the current counter value.
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name  string
	help  string
	value atomic.Int64
}

// Set sets the gauge to the given value.
func (g *Gauge) Set(v int64) { g.value.Store(v) }

// Inc increments the gauge by 1.
func (g *Gauge) Inc() { g.value.Add(1) }

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() { g.value.Add(-1) }

// Value returns the current gauge value.
func (g *Gauge) Value() int64 { return g.value.Load() }

// GetCounter returns (creating if needed) a counter by name.
func (c *MetricsCollector) GetCounter(name, help string) *Counter {
	if v, ok := c.counters.Load(name); ok {
		return v.(*Counter)
	}
	counter := &Counter{name: name, help: help}
	actual, _ := c.counters.LoadOrStore(name, counter)
	return actual.(*Counter)
}

// GetGauge returns (creating if needed) a gauge by name.
func (c *MetricsCollector) GetGauge(name, help string) *Gauge {
	if v, ok := c.gauges.Load(name); ok {
		return v.(*Gauge)
	}
	gauge := &Gauge{name: name, help: help}
	actual, _ := c.gauges.LoadOrStore(name, gauge)
	return actual.(*Gauge)
}

// Snapshot returns current metric values keyed by name.
func (c *MetricsCollector) Snapshot() map[string]int64 {
	out := make(map[string]int64)
	c.counters.Range(func(k, v any) bool {
		out[k.(string)] = v.(*Counter).Value()
		return true
	})
	c.gauges.Range(func(k, v any) bool {
		out[k.(string)] = v.(*Gauge).Value()
		return true
	})
	return out
}

// Expose writes all metrics in Prometheus text exposition format.
func (c *MetricsCollector) Expose() string {
	type line struct {
		name, help, typ string
		value           int64
	}
	var lines []line
	c.counters.Range(func(k, v any) bool {
		ct := v.(*Counter)
		lines = append(lines, line{name: ct.name, help: ct.help, typ: "counter", value: ct.Value()})
		return true
	})
	c.gauges.Range(func(k, v any) bool {
		g := v.(*Gauge)
		lines = append(lines, line{name: g.name, help: g.help, typ: "gauge", value: g.Value()})
		return true
	})
	sort.Slice(lines, func(i, j int) bool { return lines[i].name < lines[j].name })

	var b []byte
	for _, l := range lines {
		b = fmt.Appendf(b, "# HELP %s %s\n# TYPE %s %s\n%s %d\n", l.name, l.help, l.name, l.typ, l.name, l.value)
	}
	b = fmt.Appendf(b, "# HELP omnibot_uptime_seconds Process uptime.\n# TYPE omnibot_uptime_seconds gauge\nomnibot_uptime_seconds %d\n",
		int64(c.Uptime().Seconds()))
	return string(b)
}

// Handler serves the exposition format over HTTP.
func (c *MetricsCollector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprint(w, c.Expose())
	})
}
