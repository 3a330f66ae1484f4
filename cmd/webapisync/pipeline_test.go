package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SimioLLC/WebAPISync/config"
	"github.com/SimioLLC/WebAPISync/metric"
	"github.com/SimioLLC/WebAPISync/storage/sqltable"
	"github.com/SimioLLC/WebAPISync/table"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Receiver.BaseURL = "http://127.0.0.1:0/"
	cfg.Receiver.ShutdownTimeout = 2 * time.Second
	cfg.Metrics.Enabled = false
	cfg.Destination.Columns = []config.ColumnConfig{{Name: "v", Kind: "real"}}
	return cfg
}

// startPipeline runs p until the test ends and waits for the receiver.
func startPipeline(t *testing.T, p *pipeline) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("pipeline did not stop")
		}
	})

	require.Eventually(t, func() bool { return p.input.Addr() != "" }, 2*time.Second, 10*time.Millisecond)
}

func post(t *testing.T, p *pipeline, body string) {
	t.Helper()
	resp, err := http.Post("http://"+p.input.Addr()+"/", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPipeline_DrainsOnArrival(t *testing.T) {
	cfg := testConfig()
	p, err := newPipeline(context.Background(), cfg, slog.Default(), metric.NewMetricsRegistry())
	require.NoError(t, err)
	startPipeline(t, p)

	post(t, p, `{"v":4}`)

	dest := p.dest.(*table.Memory)
	require.Eventually(t, func() bool { return p.calendar.Stats().Fired >= 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, dest.Len())
	assert.Equal(t, 4.0, dest.Rows()[0][0].Real)

	// clear_rows replaces the table on the next drain
	post(t, p, `{"v":5}`)
	require.Eventually(t, func() bool { return p.calendar.Stats().Fired >= 2 }, 2*time.Second, 10*time.Millisecond)
	rows := dest.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, 5.0, rows[0][0].Real)
}

func TestPipeline_IntervalTriggerIntoSQLite(t *testing.T) {
	cfg := testConfig()
	cfg.Drain.Trigger = config.TriggerInterval
	cfg.Drain.Interval = 20 * time.Millisecond
	cfg.Drain.ClearRows = false
	cfg.Destination.Driver = config.DriverSQLite
	cfg.Destination.DSN = "file::memory:"
	cfg.Destination.Table = "readings"

	p, err := newPipeline(context.Background(), cfg, slog.Default(), metric.NewMetricsRegistry())
	require.NoError(t, err)
	startPipeline(t, p)

	post(t, p, `{"v":1}`)
	post(t, p, `<data><v>2</v></data>`)

	dest := p.dest.(*sqltable.Table)
	require.Eventually(t, func() bool {
		n, err := dest.Count(context.Background())
		return err == nil && n == 2
	}, 3*time.Second, 20*time.Millisecond)
}

func TestPipeline_BadStylesheetPathFails(t *testing.T) {
	cfg := testConfig()
	cfg.Drain.Stylesheet = "does-not-exist.yaml"

	_, err := newPipeline(context.Background(), cfg, slog.Default(), metric.NewMetricsRegistry())
	assert.Error(t, err)
}
