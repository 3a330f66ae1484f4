// Package webhook provides the HTTP receiver that accepts simulation input
// messages. Each POST body is appended to the receive buffer and an arrival
// event is scheduled on the simulation calendar; the body is parsed later,
// when the simulation drains the buffer.
package webhook

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/SimioLLC/WebAPISync/component"
	"github.com/SimioLLC/WebAPISync/errors"
	"github.com/SimioLLC/WebAPISync/message"
	"github.com/SimioLLC/WebAPISync/metric"
	"github.com/SimioLLC/WebAPISync/pkg/buffer"
)

// Scheduler fires events at the current simulation time.
type Scheduler interface {
	ScheduleCurrentEvent(fn func()) error
}

// Tap receives a copy of every accepted message.
type Tap interface {
	Offer(msg message.Raw) error
}

// Metrics holds Prometheus metrics for the receiver
type Metrics struct {
	requestsAccepted prometheus.Counter
	bytesReceived    prometheus.Counter
	scheduleFailures prometheus.Counter
	rejections       *prometheus.CounterVec
}

func newMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	m := &Metrics{
		requestsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "webapisync",
			Subsystem: "webhook",
			Name:      "requests_accepted_total",
			Help:      "POST requests whose body was buffered",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "webapisync",
			Subsystem: "webhook",
			Name:      "bytes_received_total",
			Help:      "Body bytes buffered",
		}),
		scheduleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "webapisync",
			Subsystem: "webhook",
			Name:      "schedule_failures_total",
			Help:      "Arrival events the calendar refused",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webapisync",
			Subsystem: "webhook",
			Name:      "requests_rejected_total",
			Help:      "Requests rejected before buffering, by reason",
		}, []string{"reason"}),
	}

	const service = "webhook"
	for _, err := range []error{
		registry.RegisterCounter(service, "requests_accepted", m.requestsAccepted),
		registry.RegisterCounter(service, "bytes_received", m.bytesReceived),
		registry.RegisterCounter(service, "schedule_failures", m.scheduleFailures),
		registry.RegisterCounterVec(service, "requests_rejected", m.rejections),
	} {
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// InputDeps holds runtime dependencies for the receiver
type InputDeps struct {
	Config Config

	// Buffer receives accepted messages. When nil the receiver creates one
	// whose retention follows Config.PersistMessages.
	Buffer *buffer.Receive[message.Raw]

	// Scheduler and OnArrival together raise one simulation event per
	// accepted request. OnArrival may be nil.
	Scheduler Scheduler
	OnArrival func()

	Tap             Tap                     // optional
	MetricsRegistry *metric.MetricsRegistry // optional
	Logger          *slog.Logger            // optional
}

// Input is the HTTP receiver component
type Input struct {
	config    Config
	buffer    *buffer.Receive[message.Raw]
	scheduler Scheduler
	onArrival func()
	tap       Tap
	logger    *slog.Logger
	metrics   *Metrics
	core      *metric.Metrics

	lifecycleMu sync.Mutex
	server      *http.Server
	listener    net.Listener
	serveDone   chan struct{}
	running     atomic.Bool
	startTime   time.Time

	accepted     atomic.Int64
	bytes        atomic.Int64
	rejected     atomic.Int64
	schedFailed  atomic.Int64
	lastActivity atomic.Value // time.Time
	lastError    atomic.Value // string
}

var _ component.LifecycleComponent = (*Input)(nil)

// NewInput creates a receiver. It does not listen until Start.
func NewInput(deps InputDeps) (*Input, error) {
	if deps.OnArrival != nil && deps.Scheduler == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "webhook", "NewInput",
			"arrival event without scheduler")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	buf := deps.Buffer
	if buf == nil {
		var opts []buffer.Option[message.Raw]
		if deps.MetricsRegistry != nil {
			opts = append(opts, buffer.WithMetrics[message.Raw](deps.MetricsRegistry, "webhook"))
		}
		var err error
		buf, err = buffer.NewReceive(buffer.PolicyFor(deps.Config.PersistMessages), opts...)
		if err != nil {
			return nil, errors.Wrap(err, "webhook", "NewInput", "create receive buffer")
		}
	}

	i := &Input{
		config:    deps.Config,
		buffer:    buf,
		scheduler: deps.Scheduler,
		onArrival: deps.OnArrival,
		tap:       deps.Tap,
		logger:    logger.With("component", "webhook", "base_url", deps.Config.BaseURL),
	}
	if i.config.MaxBodyBytes == 0 {
		i.config.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	if i.config.ShutdownTimeout <= 0 {
		i.config.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}

	if deps.MetricsRegistry != nil {
		m, err := newMetrics(deps.MetricsRegistry)
		if err != nil {
			return nil, errors.Wrap(err, "webhook", "NewInput", "register metrics")
		}
		i.metrics = m
		i.core = deps.MetricsRegistry.CoreMetrics()
	}
	i.lastActivity.Store(time.Time{})
	i.lastError.Store("")
	return i, nil
}

// Buffer returns the receive buffer the drain consumes.
func (i *Input) Buffer() *buffer.Receive[message.Raw] {
	return i.buffer
}

// LatestPayload returns the body of the most recent accepted request, even
// if it has already been drained.
func (i *Input) LatestPayload() (string, bool) {
	msg, ok := i.buffer.Latest()
	return msg.Payload, ok
}

// Meta describes the receiver
func (i *Input) Meta() component.Metadata {
	return component.Metadata{
		Name:        "webhook",
		Type:        "input",
		Description: fmt.Sprintf("HTTP POST receiver on %s (%s)", i.config.BaseURL, i.buffer.Policy()),
		Version:     "1.0.0",
	}
}

// Initialize validates the configuration
func (i *Input) Initialize() error {
	return i.config.Validate()
}

// Handler returns the routed HTTP handler: POST on the base path only.
func (i *Input) Handler() http.Handler {
	_, path, _ := i.config.endpoint()
	if path == "" {
		path = "/"
	}

	router := mux.NewRouter()
	router.HandleFunc(path, i.handlePost).Methods(http.MethodPost)
	if path != "/" {
		router.HandleFunc(path+"/", i.handlePost).Methods(http.MethodPost)
	}
	return router
}

// Start binds the listen address and serves requests until Stop.
func (i *Input) Start(ctx context.Context) error {
	i.lifecycleMu.Lock()
	defer i.lifecycleMu.Unlock()

	if i.running.Load() {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "webhook", "Start", "check started state")
	}

	addr, _, err := i.config.endpoint()
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.WrapFatal(err, "webhook", "Start", fmt.Sprintf("listen on %s", addr))
	}

	i.server = &http.Server{
		Handler:           i.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ErrorLog:          slog.NewLogLogger(i.logger.Handler(), slog.LevelWarn),
	}
	i.listener = ln
	i.serveDone = make(chan struct{})
	i.startTime = time.Now()
	i.running.Store(true)

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			i.lastError.Store(err.Error())
			i.running.Store(false)
			i.logger.Error("Webhook server stopped", "error", err)
		}
	}(i.server, i.serveDone)

	i.logger.Info("Webhook receiver listening", "address", ln.Addr().String(),
		"retention", i.buffer.Policy().String())
	return nil
}

// Stop stops accepting requests and waits up to timeout (the configured
// shutdown timeout when timeout is zero) for in-flight requests. Messages
// still buffered are discarded.
func (i *Input) Stop(timeout time.Duration) error {
	i.lifecycleMu.Lock()
	defer i.lifecycleMu.Unlock()

	if i.server == nil {
		return nil
	}
	if timeout <= 0 {
		timeout = i.config.ShutdownTimeout
	}
	i.running.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var stopErr error
	if err := i.server.Shutdown(ctx); err != nil {
		_ = i.server.Close()
		stopErr = errors.WrapTransient(err, "webhook", "Stop", "wait for in-flight requests")
	}
	<-i.serveDone

	if dropped := len(i.buffer.DrainAndClear()); dropped > 0 {
		i.logger.Debug("Discarded undrained messages", "count", dropped)
	}

	i.server = nil
	i.listener = nil
	return stopErr
}

// Addr returns the bound address, or "" when not listening.
func (i *Input) Addr() string {
	i.lifecycleMu.Lock()
	defer i.lifecycleMu.Unlock()
	if i.listener == nil {
		return ""
	}
	return i.listener.Addr().String()
}

func (i *Input) handlePost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, i.config.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			i.reject(w, "too_large", http.StatusRequestEntityTooLarge, errors.ErrPayloadTooLarge)
			return
		}
		i.reject(w, "read_error", http.StatusBadRequest, err)
		return
	}

	msg := message.NewRaw(0, string(body), message.WithRemoteAddr(r.RemoteAddr))
	msg.Seq = i.buffer.AppendStamped(msg, (*message.Raw).SetSeq)

	n := len(body)
	i.accepted.Add(1)
	i.bytes.Add(int64(n))
	i.lastActivity.Store(msg.ReceivedAt)
	if i.metrics != nil {
		i.metrics.requestsAccepted.Inc()
		i.metrics.bytesReceived.Add(float64(n))
		i.core.RecordMessageReceived("webhook", n)
	}

	if i.onArrival != nil {
		if err := i.scheduler.ScheduleCurrentEvent(i.onArrival); err != nil {
			i.schedFailed.Add(1)
			i.lastError.Store(err.Error())
			if i.metrics != nil {
				i.metrics.scheduleFailures.Inc()
			}
			i.logger.Warn("Failed to schedule arrival event", "seq", msg.Seq, "error", err)
		}
	}

	if i.tap != nil {
		if err := i.tap.Offer(msg); err != nil {
			i.logger.Debug("Tap refused message", "seq", msg.Seq, "error", err)
		}
	}

	i.logger.Debug("Message received", "seq", msg.Seq, "bytes", n, "remote", r.RemoteAddr)
	w.WriteHeader(http.StatusOK)
}

func (i *Input) reject(w http.ResponseWriter, reason string, status int, err error) {
	i.rejected.Add(1)
	i.lastError.Store(err.Error())
	if i.metrics != nil {
		i.metrics.rejections.WithLabelValues(reason).Inc()
		i.core.RecordError("webhook", errors.Classify(err).String())
	}
	i.logger.Warn("Rejected request", "reason", reason, "error", err)
	http.Error(w, http.StatusText(status), status)
}

// Health reports whether the receiver is listening
func (i *Input) Health() component.HealthStatus {
	i.lifecycleMu.Lock()
	started := i.startTime
	i.lifecycleMu.Unlock()

	running := i.running.Load()
	var uptime time.Duration
	if running {
		uptime = time.Since(started)
	}
	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(i.rejected.Load() + i.schedFailed.Load()),
		LastError:  i.lastError.Load().(string),
		Uptime:     uptime,
	}
}

// DataFlow reports request throughput
func (i *Input) DataFlow() component.FlowMetrics {
	i.lifecycleMu.Lock()
	started := i.startTime
	i.lifecycleMu.Unlock()

	accepted := i.accepted.Load()
	rejected := i.rejected.Load()
	var errorRate float64
	if total := accepted + rejected; total > 0 {
		errorRate = float64(rejected) / float64(total)
	}
	return component.FlowMetrics{
		MessagesPerSecond: component.Rate(accepted, started),
		BytesPerSecond:    component.Rate(i.bytes.Load(), started),
		ErrorRate:         errorRate,
		LastActivity:      i.lastActivity.Load().(time.Time),
	}
}
