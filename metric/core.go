package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "webapisync"

// Metrics contains the pipeline-level metrics shared by every component
type Metrics struct {
	ServiceStatus     *prometheus.GaugeVec
	MessagesReceived  *prometheus.CounterVec
	BytesReceived     prometheus.Counter
	DrainsTotal       *prometheus.CounterVec
	MessagesDrained   prometheus.Counter
	RowsWritten       prometheus.Counter
	DrainDuration     prometheus.Histogram
	ErrorsTotal       *prometheus.CounterVec
	HealthCheckStatus *prometheus.GaugeVec

	NATSConnected prometheus.Gauge
	TapPublished  *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		ServiceStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "service",
				Name:      "status",
				Help:      "Service status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"service"},
		),

		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Total number of messages accepted by the receiver",
			},
			[]string{"service"},
		),

		BytesReceived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "received_bytes_total",
				Help:      "Total payload bytes accepted by the receiver",
			},
		),

		DrainsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "drain",
				Name:      "total",
				Help:      "Total number of drains by status",
			},
			[]string{"status"},
		),

		MessagesDrained: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "drain",
				Name:      "messages_total",
				Help:      "Total number of messages taken from the receive buffer",
			},
		),

		RowsWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "drain",
				Name:      "rows_written_total",
				Help:      "Total number of destination rows written",
			},
		),

		DrainDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "drain",
				Name:      "duration_seconds",
				Help:      "Drain duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors by component and class",
			},
			[]string{"service", "class"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"service"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		TapPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tap",
				Name:      "published_total",
				Help:      "Total number of payloads mirrored to NATS by status",
			},
			[]string{"status"},
		),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.ServiceStatus,
		c.MessagesReceived,
		c.BytesReceived,
		c.DrainsTotal,
		c.MessagesDrained,
		c.RowsWritten,
		c.DrainDuration,
		c.ErrorsTotal,
		c.HealthCheckStatus,
		c.NATSConnected,
		c.TapPublished,
	}
}

// RecordServiceStatus updates service status metric
func (c *Metrics) RecordServiceStatus(service string, status int) {
	c.ServiceStatus.WithLabelValues(service).Set(float64(status))
}

// RecordMessageReceived counts one accepted request and its payload size
func (c *Metrics) RecordMessageReceived(service string, bytes int) {
	c.MessagesReceived.WithLabelValues(service).Inc()
	c.BytesReceived.Add(float64(bytes))
}

// RecordDrain records the outcome of one drain
func (c *Metrics) RecordDrain(status string, messages, rows int, duration time.Duration) {
	c.DrainsTotal.WithLabelValues(status).Inc()
	c.MessagesDrained.Add(float64(messages))
	c.RowsWritten.Add(float64(rows))
	c.DrainDuration.Observe(duration.Seconds())
}

// RecordError increments error counter
func (c *Metrics) RecordError(service, class string) {
	c.ErrorsTotal.WithLabelValues(service, class).Inc()
}

// RecordHealthStatus updates health check status
func (c *Metrics) RecordHealthStatus(service string, healthy bool) {
	c.HealthCheckStatus.WithLabelValues(service).Set(boolToFloat(healthy))
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	c.NATSConnected.Set(boolToFloat(connected))
}

// RecordTapPublish counts one mirrored payload
func (c *Metrics) RecordTapPublish(ok bool) {
	status := "success"
	if !ok {
		status = "error"
	}
	c.TapPublished.WithLabelValues(status).Inc()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
