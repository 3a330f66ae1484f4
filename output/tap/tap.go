// Package tap mirrors every accepted webhook payload onto a NATS subject so
// other services can observe the traffic without touching the simulation.
package tap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SimioLLC/WebAPISync/component"
	"github.com/SimioLLC/WebAPISync/errors"
	"github.com/SimioLLC/WebAPISync/message"
	"github.com/SimioLLC/WebAPISync/metric"
	"github.com/SimioLLC/WebAPISync/pkg/retry"
	"github.com/SimioLLC/WebAPISync/pkg/worker"
)

// Publisher sends bytes on a subject. *natsclient.Client implements it.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Config holds tap settings
type Config struct {
	Subject   string `yaml:"subject" json:"subject"`
	Workers   int    `yaml:"workers" json:"workers"`
	QueueSize int    `yaml:"queue_size" json:"queue_size"`
}

// DefaultConfig returns the default tap settings
func DefaultConfig() Config {
	return Config{
		Subject:   "webapisync.messages",
		Workers:   2,
		QueueSize: 1024,
	}
}

// Deps holds runtime dependencies for the tap
type Deps struct {
	Config          Config
	Publisher       Publisher
	MetricsRegistry *metric.MetricsRegistry // optional
	Logger          *slog.Logger            // optional
}

// Envelope is the JSON document published for each message.
type Envelope struct {
	ID         string    `json:"id"`
	Seq        uint64    `json:"seq"`
	ReceivedAt time.Time `json:"received_at"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	Size       int       `json:"size"`
	Payload    string    `json:"payload"`
}

// Tap publishes messages asynchronously through a worker pool. Offer never
// blocks the caller; when the queue is full the message is dropped.
type Tap struct {
	config    Config
	publisher Publisher
	metrics   *metric.Metrics
	logger    *slog.Logger
	retry     errors.RetryConfig

	pool *worker.Pool[message.Raw]

	mu        sync.Mutex
	running   bool
	startTime time.Time

	published    atomic.Int64
	bytes        atomic.Int64
	failures     atomic.Int64
	lastActivity atomic.Value // time.Time
	lastError    atomic.Value // string
}

var _ component.LifecycleComponent = (*Tap)(nil)

// New creates a tap.
func New(deps Deps) (*Tap, error) {
	cfg := deps.Config
	defaults := DefaultConfig()
	if cfg.Subject == "" {
		cfg.Subject = defaults.Subject
	}
	if deps.Publisher == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Tap", "New", "require publisher")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := &Tap{
		config:    cfg,
		publisher: deps.Publisher,
		logger:    logger.With("component", "tap", "subject", cfg.Subject),
		retry:     errors.DefaultRetryConfig(),
	}
	if deps.MetricsRegistry != nil {
		t.metrics = deps.MetricsRegistry.CoreMetrics()
	}
	t.lastActivity.Store(time.Time{})
	t.lastError.Store("")

	var opts []worker.Option[message.Raw]
	if deps.MetricsRegistry != nil {
		opts = append(opts, worker.WithMetricsRegistry[message.Raw](deps.MetricsRegistry, "tap"))
	}
	pool, err := worker.NewPool(cfg.Workers, cfg.QueueSize, t.publish, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "Tap", "New", "create worker pool")
	}
	t.pool = pool
	return t, nil
}

// Meta describes the tap
func (t *Tap) Meta() component.Metadata {
	return component.Metadata{
		Name:        "nats-tap",
		Type:        "output",
		Description: fmt.Sprintf("Mirrors received payloads to NATS subject %s", t.config.Subject),
		Version:     "1.0.0",
	}
}

// Initialize validates the configuration
func (t *Tap) Initialize() error {
	if t.config.Subject == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Tap", "Initialize", "subject validation")
	}
	return nil
}

// Start launches the publishing workers
func (t *Tap) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return nil
	}
	if err := t.pool.Start(ctx); err != nil {
		return errors.WrapFatal(err, "Tap", "Start", "start worker pool")
	}
	t.running = true
	t.startTime = time.Now()
	return nil
}

// Stop waits up to timeout for queued messages to be published
func (t *Tap) Stop(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}
	t.running = false
	if err := t.pool.Stop(timeout); err != nil {
		return errors.WrapTransient(err, "Tap", "Stop", "drain publish queue")
	}
	return nil
}

// Offer queues msg for publishing. It returns worker.ErrQueueFull when the
// queue is saturated and worker.ErrPoolNotStarted before Start.
func (t *Tap) Offer(msg message.Raw) error {
	return t.pool.Submit(msg)
}

func (t *Tap) publish(ctx context.Context, msg message.Raw) error {
	data, err := json.Marshal(Envelope{
		ID:         msg.ID.String(),
		Seq:        msg.Seq,
		ReceivedAt: msg.ReceivedAt,
		RemoteAddr: msg.RemoteAddr,
		Size:       msg.Size(),
		Payload:    msg.Payload,
	})
	if err != nil {
		return t.fail(errors.WrapInvalid(err, "Tap", "publish", "encode envelope"))
	}

	retries := 0
	err = retry.Do(ctx, t.retry.ToRetryConfig(), func() error {
		err := t.publisher.Publish(ctx, t.config.Subject, data)
		if err == nil {
			return nil
		}
		if !t.retry.ShouldRetry(err, retries) {
			return retry.NonRetryable(err)
		}
		retries++
		return err
	})
	if err != nil {
		return t.fail(errors.WrapTransient(err, "Tap", "publish", "publish envelope"))
	}

	t.published.Add(1)
	t.bytes.Add(int64(len(data)))
	t.lastActivity.Store(time.Now())
	if t.metrics != nil {
		t.metrics.RecordTapPublish(true)
	}
	return nil
}

func (t *Tap) fail(err error) error {
	t.failures.Add(1)
	t.lastError.Store(err.Error())
	if t.metrics != nil {
		t.metrics.RecordTapPublish(false)
		t.metrics.RecordError("tap", errors.Classify(err).String())
	}
	t.logger.Warn("Failed to mirror message", "error", err)
	return err
}

// Health reports whether the tap is running
func (t *Tap) Health() component.HealthStatus {
	t.mu.Lock()
	running, started := t.running, t.startTime
	t.mu.Unlock()

	var uptime time.Duration
	if running {
		uptime = time.Since(started)
	}
	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(t.failures.Load()),
		LastError:  t.lastError.Load().(string),
		Uptime:     uptime,
	}
}

// DataFlow reports publish throughput
func (t *Tap) DataFlow() component.FlowMetrics {
	t.mu.Lock()
	started := t.startTime
	t.mu.Unlock()

	published := t.published.Load()
	failures := t.failures.Load()
	var errorRate float64
	if total := published + failures; total > 0 {
		errorRate = float64(failures) / float64(total)
	}
	return component.FlowMetrics{
		MessagesPerSecond: component.Rate(published, started),
		BytesPerSecond:    component.Rate(t.bytes.Load(), started),
		ErrorRate:         errorRate,
		LastActivity:      t.lastActivity.Load().(time.Time),
	}
}

// Stats returns the underlying pool statistics
func (t *Tap) Stats() worker.PoolStats {
	return t.pool.Stats()
}
