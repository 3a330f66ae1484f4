// Package component defines the contract shared by the service's long-running
// parts: the webhook receiver, the NATS tap and the drain trigger.
//
// Every component is Discoverable (metadata, health, data-flow metrics) and
// follows the same lifecycle:
//
//	Initialize() error                 validate configuration, no I/O
//	Start(ctx context.Context) error   begin work, ctx bounds its lifetime
//	Stop(timeout time.Duration) error  stop within timeout
//
// Components never store the context they are started with beyond the
// goroutines it governs.
//
// A Group wires a set of components together: Start initializes and starts
// them in registration order, rolling back on the first failure, and Stop
// tears them down in reverse. Group.Health has the shape expected by
// metric.Server's /healthz endpoint.
package component
