// Package drain runs the demand-pulled pipeline: take every buffered
// message, convert each into a table fragment, merge the fragments and write
// the result into the destination table.
package drain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SimioLLC/WebAPISync/errors"
	"github.com/SimioLLC/WebAPISync/message"
	"github.com/SimioLLC/WebAPISync/metric"
	"github.com/SimioLLC/WebAPISync/processor/format"
	"github.com/SimioLLC/WebAPISync/processor/materialize"
	"github.com/SimioLLC/WebAPISync/processor/merge"
	"github.com/SimioLLC/WebAPISync/processor/transform"
	"github.com/SimioLLC/WebAPISync/table"
)

// Source is the buffer side a drain consumes.
type Source interface {
	DrainAndClear() []message.Raw
}

// Deps holds the collaborators of a Drainer.
type Deps struct {
	Buffer          Source
	MergePolicy     merge.Policy
	Binding         materialize.Binding
	MetricsRegistry *metric.MetricsRegistry // optional
	Logger          *slog.Logger            // optional
}

// Request is one drain invocation.
type Request struct {
	Destination table.Destination
	// ClearRows removes existing destination rows before writing, also when
	// the drain has nothing to write.
	ClearRows bool
	// Stylesheet is the stylesheet text; empty means identity.
	Stylesheet string
}

// Result describes a finished drain.
type Result struct {
	Messages       int
	Fragments      int
	EmptyFragments int
	DroppedColumns int
	PaddedRows     int
	TruncatedRows  int
	Rows           int
	Cleared        bool
	Cells          materialize.Result
	Duration       time.Duration
}

// Drainer executes drains. Calls must not overlap; the simulation calendar
// runs them one at a time.
type Drainer struct {
	buffer       Source
	policy       merge.Policy
	materializer *materialize.Materializer
	metrics      *metric.Metrics
	logger       *slog.Logger
}

// New creates a Drainer.
func New(deps Deps) (*Drainer, error) {
	if deps.Buffer == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Drainer", "New", "require receive buffer")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Drainer{
		buffer:       deps.Buffer,
		policy:       deps.MergePolicy,
		materializer: materialize.New(deps.Binding),
		logger:       logger.With("component", "drain"),
	}
	if deps.MetricsRegistry != nil {
		d.metrics = deps.MetricsRegistry.CoreMetrics()
	}
	return d, nil
}

// Drain takes every buffered message and writes the merged rows into
// req.Destination. The stylesheet is compiled before the buffer is touched,
// so a broken stylesheet leaves messages buffered. Once drained, messages
// are not restored: a failure while converting any message aborts the whole
// drain without writing to the destination. Destinations that do not stage
// writes themselves are wrapped in table.Staged, so the clear and the new
// rows reach them together or not at all.
func (d *Drainer) Drain(ctx context.Context, req Request) (res Result, err error) {
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		d.record(res, err)
	}()

	if req.Destination == nil {
		return res, errors.WrapInvalid(errors.ErrMissingConfig, "Drainer", "Drain", "require destination table")
	}
	sheet, err := transform.Compile(req.Stylesheet)
	if err != nil {
		return res, errors.WrapInvalid(err, "Drainer", "Drain", "compile stylesheet")
	}

	messages := d.buffer.DrainAndClear()
	res.Messages = len(messages)

	merged, stats, err := Collect(messages, sheet, d.policy, d.logger)
	res.Fragments = stats.Fragments
	res.EmptyFragments = stats.EmptyFragments
	res.DroppedColumns = stats.DroppedColumns
	res.PaddedRows = stats.PaddedRows
	res.TruncatedRows = stats.TruncatedRows
	if err != nil {
		return res, errors.WrapInvalid(err, "Drainer", "Drain", "convert messages")
	}

	dest := req.Destination
	flusher, staged := dest.(table.Flusher)
	if !staged {
		s := table.Stage(dest)
		dest, flusher = s, s
	}

	if req.ClearRows {
		if err := dest.RemoveAllRows(ctx); err != nil {
			flusher.Discard()
			return res, errors.WrapTransient(err, "Drainer", "Drain", "clear destination rows")
		}
	}

	cells, err := d.materializer.Materialize(ctx, merged, dest)
	res.Cells = cells
	if err != nil {
		flusher.Discard()
		return res, errors.Wrap(err, "Drainer", "Drain", "materialize rows")
	}
	if err := flusher.Flush(ctx); err != nil {
		return res, errors.WrapTransient(err, "Drainer", "Drain", "flush destination")
	}
	res.Cleared = req.ClearRows
	res.Rows = cells.Rows

	d.logger.Info("Message(s) have been read from endpoint",
		"messages", res.Messages, "rows", res.Rows, "columns", len(merged.Columns),
		"cleared", res.Cleared, "cells", cells)
	return res, nil
}

func (d *Drainer) record(res Result, err error) {
	if d.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
		d.metrics.RecordError("drain", errors.Classify(err).String())
	}
	d.metrics.RecordDrain(status, res.Messages, res.Rows, res.Duration)
}

// Collect converts messages into one merged table, in order. The first
// failing message stops the collection; its error names the message's
// sequence number and wraps errors.ErrDrainFailed.
func Collect(messages []message.Raw, sheet *transform.Stylesheet, policy merge.Policy, logger *slog.Logger) (merge.Table, merge.Stats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	engine := transform.NewEngine(sheet)
	merger := merge.New(policy)

	for _, msg := range messages {
		doc, kind, err := format.Normalize(msg.Payload)
		if err == nil {
			var frag table.Fragment
			if frag, err = engine.Transform(doc); err == nil {
				err = merger.Add(frag)
				logger.Debug("Message converted", "seq", msg.Seq, "format", kind.String(),
					"rows", len(frag.Rows), "columns", len(frag.Columns))
			}
		}
		if err != nil {
			return merge.Table{}, merger.Stats(), fmt.Errorf("%w (message %d, %s): %w",
				errors.ErrDrainFailed, msg.Seq, kind, err)
		}
	}
	return merger.Table(), merger.Stats(), nil
}
