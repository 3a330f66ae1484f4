package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/SimioLLC/WebAPISync/component"
	"github.com/SimioLLC/WebAPISync/config"
	"github.com/SimioLLC/WebAPISync/errors"
	"github.com/SimioLLC/WebAPISync/health"
	"github.com/SimioLLC/WebAPISync/input/webhook"
	"github.com/SimioLLC/WebAPISync/metric"
	"github.com/SimioLLC/WebAPISync/natsclient"
	"github.com/SimioLLC/WebAPISync/output/tap"
	"github.com/SimioLLC/WebAPISync/processor/drain"
	"github.com/SimioLLC/WebAPISync/processor/materialize"
	"github.com/SimioLLC/WebAPISync/processor/merge"
	"github.com/SimioLLC/WebAPISync/processor/transform"
	"github.com/SimioLLC/WebAPISync/sim"
	"github.com/SimioLLC/WebAPISync/storage/sqltable"
	"github.com/SimioLLC/WebAPISync/table"
)

const drainTimeout = 30 * time.Second

// pipeline hosts the receiver, the calendar that serializes drains and the
// destination table.
type pipeline struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *metric.MetricsRegistry

	calendar   *sim.Calendar
	input      *webhook.Input
	drainer    *drain.Drainer
	dest       table.Destination
	stylesheet transform.Source
	watcher    *transform.FileSource // nil without a stylesheet file
	nats       *natsclient.Client    // nil when the tap is disabled
	group      *component.Group
	closers    []func() error

	drains   atomic.Int64
	failures atomic.Int64
}

func newPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger, registry *metric.MetricsRegistry) (p *pipeline, err error) {
	p = &pipeline{
		cfg:        cfg,
		logger:     logger,
		registry:   registry,
		calendar:   sim.NewCalendar(sim.WithLogger(logger)),
		stylesheet: transform.Static(""),
		group:      component.NewGroup(logger),
	}
	defer func() {
		if err != nil {
			p.close()
		}
	}()

	if path := cfg.Drain.Stylesheet; path != "" {
		source, err := transform.NewFileSource(path, logger)
		if err != nil {
			return nil, err
		}
		p.watcher = source
		p.stylesheet = source
	}

	if p.dest, err = p.openDestination(ctx); err != nil {
		return nil, err
	}

	var mirror webhook.Tap
	if cfg.NATS.Enabled {
		t, err := p.openTap(ctx)
		if err != nil {
			return nil, err
		}
		mirror = t
	}

	deps := webhook.InputDeps{
		Config:          cfg.Receiver,
		Scheduler:       p.calendar,
		Tap:             mirror,
		MetricsRegistry: registry,
		Logger:          logger,
	}
	if cfg.Drain.Trigger == "" || cfg.Drain.Trigger == config.TriggerArrival {
		deps.OnArrival = p.drainNow
	}
	if p.input, err = webhook.NewInput(deps); err != nil {
		return nil, err
	}

	policy, err := merge.ParsePolicy(cfg.Drain.MergePolicy)
	if err != nil {
		return nil, err
	}
	binding, err := materialize.ParseBinding(cfg.Drain.Binding)
	if err != nil {
		return nil, err
	}
	p.drainer, err = drain.New(drain.Deps{
		Buffer:          p.input.Buffer(),
		MergePolicy:     policy,
		Binding:         binding,
		MetricsRegistry: registry,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	// Started in this order and stopped in reverse: the receiver stops first
	// and the calendar fires its remaining drains last.
	p.group.Add(p.calendar)
	if t, ok := mirror.(*tap.Tap); ok {
		p.group.Add(t)
	}
	p.group.Add(p.input)
	return p, nil
}

func (p *pipeline) openDestination(ctx context.Context) (table.Destination, error) {
	dc := p.cfg.Destination
	columns, err := dc.ColumnSpecs()
	if err != nil {
		return nil, err
	}
	epoch, err := dc.EpochTime()
	if err != nil {
		return nil, err
	}

	switch dc.Driver {
	case config.DriverMemory:
		return table.NewMemory(columns, table.WithEpoch(epoch)), nil
	case config.DriverSQLite, config.DriverPostgres:
		t, err := sqltable.Open(ctx, sqltable.Config{
			Driver:  dc.Driver,
			DSN:     dc.DSN,
			Table:   dc.Table,
			Columns: columns,
			Epoch:   epoch,
		}, p.logger)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, t.Close)
		return t, nil
	default:
		return nil, errors.WrapInvalid(fmt.Errorf("unknown driver %q", dc.Driver), "pipeline", "openDestination", "open destination")
	}
}

func (p *pipeline) openTap(ctx context.Context) (*tap.Tap, error) {
	nc := p.cfg.NATS
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(p.logger),
		natsclient.WithMetrics(p.registry),
		natsclient.WithMaxReconnects(nc.MaxReconnects),
		natsclient.WithReconnectWait(nc.ReconnectWait),
		natsclient.WithName(appName),
		natsclient.WithHealthChangeCallback(func(healthy bool) {
			if healthy {
				p.logger.Info("NATS tap connection restored", "url", nc.URL)
			} else {
				p.logger.Warn("NATS tap connection lost, payloads are not mirrored", "url", nc.URL)
			}
		}),
	}
	if nc.PingInterval > 0 {
		opts = append(opts, natsclient.WithPingInterval(nc.PingInterval))
	}
	if nc.DrainTimeout > 0 {
		opts = append(opts, natsclient.WithDrainTimeout(nc.DrainTimeout))
	}
	if nc.Username != "" {
		opts = append(opts, natsclient.WithCredentials(nc.Username, nc.Password))
	}
	if nc.Token != "" {
		opts = append(opts, natsclient.WithToken(nc.Token))
	}

	client, err := natsclient.NewClient(nc.URL, opts...)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	p.nats = client
	p.closers = append(p.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return client.Close(ctx)
	})

	cfg := tap.DefaultConfig()
	cfg.Subject = nc.Subject
	return tap.New(tap.Deps{
		Config:          cfg,
		Publisher:       client,
		MetricsRegistry: p.registry,
		Logger:          p.logger,
	})
}

// drainNow runs one drain. It fires on the calendar goroutine, so drains
// never overlap.
func (p *pipeline) drainNow() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	p.drains.Add(1)
	res, err := p.drainer.Drain(ctx, drain.Request{
		Destination: p.dest,
		ClearRows:   p.cfg.Drain.ClearRows,
		Stylesheet:  p.stylesheet.Text(),
	})
	if err != nil {
		p.failures.Add(1)
		p.logger.Error("Drain failed", "error", err, "messages", res.Messages,
			"class", errors.Classify(err).String())
	}
}

// tick schedules a drain every interval until ctx is done.
func (p *pipeline) tick(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if p.input.Buffer().Len() == 0 {
				continue
			}
			if err := p.calendar.ScheduleCurrentEvent(p.drainNow); err != nil {
				p.logger.Warn("Could not schedule drain", "error", err)
			}
		}
	}
}

// run starts every component and blocks until ctx is cancelled or a
// background task fails, then shuts everything down.
func (p *pipeline) run(ctx context.Context) error {
	stopTimeout := p.cfg.Receiver.ShutdownTimeout
	if err := p.group.Start(ctx, stopTimeout); err != nil {
		p.close()
		return err
	}
	p.logger.Info("Receiver listening", "addr", p.input.Addr(), "base_url", p.cfg.Receiver.BaseURL)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	if p.watcher != nil {
		g.Go(func() error { return p.watcher.Watch(gctx) })
	}
	if p.cfg.Drain.Trigger == config.TriggerInterval {
		g.Go(func() error { return p.tick(gctx, p.cfg.Drain.Interval) })
	}
	if p.cfg.Metrics.Enabled {
		srv := metric.NewServer(p.cfg.Metrics.Addr, p.cfg.Metrics.Path, p.registry, p.healthStatus)
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Stop(sctx)
		})
	}

	runErr := g.Wait()
	p.logger.Info("Shutting down", "drains", p.drains.Load(), "failed_drains", p.failures.Load())

	stopErr := p.group.Stop(stopTimeout)
	closeErr := p.close()
	return stderrors.Join(runErr, stopErr, closeErr)
}

func (p *pipeline) healthStatus() health.Status {
	return health.Collect(appName, p.group.Health())
}

func (p *pipeline) close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return stderrors.Join(errs...)
}
