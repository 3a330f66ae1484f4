// Package metric provides the Prometheus registry and HTTP endpoint for the
// ingestion service.
//
// A MetricsRegistry carries the core pipeline metrics (messages received,
// drains by status, rows written, drain latency, errors, NATS tap status) and
// lets each component register its own collectors under a "service.metric"
// key. Components accept a nil *MetricsRegistry and skip instrumentation in
// that case.
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(":9090", "/metrics", registry, healthFn)
//	go server.Start()
//	defer server.Stop(ctx)
//
// The server also serves /healthz with the health.Status returned by the
// HealthFunc. It answers 503 only when that status is unhealthy; a degraded
// service still answers 200.
package metric
