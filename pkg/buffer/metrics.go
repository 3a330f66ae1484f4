package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/SimioLLC/WebAPISync/metric"
)

type bufferMetrics struct {
	writes  prometheus.Counter
	drains  prometheus.Counter
	drained prometheus.Counter
	drops   prometheus.Counter
	size    prometheus.Gauge
}

func newBufferMetrics(registry *metric.MetricsRegistry, prefix string) (*bufferMetrics, error) {
	labels := prometheus.Labels{"component": prefix}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "webapisync",
			Subsystem:   "buffer",
			Name:        name,
			ConstLabels: labels,
			Help:        help,
		})
	}

	m := &bufferMetrics{
		writes:  counter("writes_total", "Total number of items appended to the buffer"),
		drains:  counter("drains_total", "Total number of drain-and-clear operations"),
		drained: counter("drained_items_total", "Total number of items handed out by drains"),
		drops:   counter("drops_total", "Total number of items replaced under RetainLast"),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "webapisync",
			Subsystem:   "buffer",
			Name:        "size",
			ConstLabels: labels,
			Help:        "Current number of items in buffer",
		}),
	}

	counters := map[string]prometheus.Counter{
		"buffer_writes":  m.writes,
		"buffer_drains":  m.drains,
		"buffer_drained": m.drained,
		"buffer_drops":   m.drops,
	}
	for name, c := range counters {
		if err := registry.RegisterCounter(prefix, name, c); err != nil {
			return nil, err
		}
	}
	if err := registry.RegisterGauge(prefix, "buffer_size", m.size); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *bufferMetrics) recordWrite(size int, dropped bool) {
	m.writes.Inc()
	if dropped {
		m.drops.Inc()
	}
	m.size.Set(float64(size))
}

func (m *bufferMetrics) recordDrain(n int) {
	m.drains.Inc()
	m.drained.Add(float64(n))
	m.size.Set(0)
}
