// Package query drives the incident pipeline: fetch the records, run the
// rule executables, filter, enrich, transform, sort, render, then apply
// any bulk action. A Loop runs the pass once or repeatedly on an interval
// until its context is cancelled.
package query

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/lorepanichi/pdh/errors"
	"github.com/lorepanichi/pdh/metric"
	"github.com/lorepanichi/pdh/record"
	"github.com/lorepanichi/pdh/render"
)

// DefaultInterval is the watch-mode sleep between passes.
const DefaultInterval = 5 * time.Second

// Fetcher pulls the raw records a pass works on.
type Fetcher func(ctx context.Context) (record.Sequence, error)

// Action mutates the records a pass selected. It receives the IDs captured
// before the display stages reshaped the sequence, so it always operates
// on real record identifiers.
type Action func(ctx context.Context, ids []string) error

// Options configure a Loop. Fetch is required; everything else has a
// usable zero value.
type Options struct {
	Fetch Fetcher

	// Select stages narrow the sequence down to the records in scope:
	// rule executables first, then filters. The IDs surviving these
	// stages are the ones an Action receives.
	Select []Stage

	// Display stages reshape the surviving records for output:
	// enrichment, transformation, sort.
	Display []Stage

	Action Action
	Render render.Options
	Out    io.Writer

	// Interval is the watch-mode sleep. Zero means DefaultInterval.
	Interval time.Duration

	// ClearScreen wipes the terminal before each watch pass.
	ClearScreen bool

	Logger  *slog.Logger
	Metrics *metric.PassMetrics
}

// Loop executes passes over the configured pipeline.
type Loop struct {
	fetch    Fetcher
	selects  []Stage
	displays []Stage
	action   Action
	render   render.Options
	out      io.Writer
	interval time.Duration
	clear    bool
	logger   *slog.Logger
	metrics  *metric.PassMetrics
}

// NewLoop validates the options and builds a Loop.
func NewLoop(opts Options) (*Loop, error) {
	if opts.Fetch == nil {
		return nil, errors.WrapConfig(errors.ErrMissingConfig,
			"Loop", "NewLoop", "fetcher required")
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "query-loop")
	}

	return &Loop{
		fetch:    opts.Fetch,
		selects:  opts.Select,
		displays: opts.Display,
		action:   opts.Action,
		render:   opts.Render,
		out:      out,
		interval: interval,
		clear:    opts.ClearScreen,
		logger:   logger,
		metrics:  opts.Metrics,
	}, nil
}

// RunOnce executes a single pass.
func (l *Loop) RunOnce(ctx context.Context) error {
	start := time.Now()
	logger := l.logger.With("run_id", uuid.NewString())

	seq, err := l.fetch(ctx)
	if err != nil {
		return errors.Wrap(err, "Loop", "RunOnce", "fetch records")
	}
	fetched := len(seq)
	l.metrics.RecordFetched(fetched)
	logger.Debug("fetched records", "count", fetched)

	for _, stage := range l.selects {
		seq, err = stage.Run(ctx, seq)
		if err != nil {
			return errors.Wrap(err, "Loop", "RunOnce", fmt.Sprintf("%s stage", stage.Name()))
		}
	}
	l.metrics.RecordFiltered(fetched - len(seq))

	// The display stages reshape the records, so capture the record
	// identities for the action while they are still real.
	ids := seq.IDs()

	display := seq
	for _, stage := range l.displays {
		display, err = stage.Run(ctx, display)
		if err != nil {
			return errors.Wrap(err, "Loop", "RunOnce", fmt.Sprintf("%s stage", stage.Name()))
		}
	}

	if err := render.Render(l.out, display, l.render); err != nil {
		return err
	}

	if l.action != nil && len(ids) > 0 {
		if err := l.action(ctx, ids); err != nil {
			return errors.Wrap(err, "Loop", "RunOnce", "apply action")
		}
	}

	l.metrics.RecordPass(time.Since(start))
	logger.Debug("pass complete",
		"fetched", fetched,
		"selected", len(ids),
		"rendered", len(display),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// Watch repeats RunOnce on the configured interval until ctx is
// cancelled. Transient pass failures are logged and retried on the next
// tick; configuration, authorization and data failures end the watch.
func (l *Loop) Watch(ctx context.Context) error {
	for {
		if l.clear {
			render.ClearScreen(l.out)
		}

		if err := l.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !errors.IsTransient(err) {
				return err
			}
			l.logger.Warn("pass failed, retrying on next interval", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.interval):
		}
	}
}
