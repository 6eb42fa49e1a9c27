package query

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/lorepanichi/pdh/errors"
	"github.com/lorepanichi/pdh/filter"
	"github.com/lorepanichi/pdh/record"
	"github.com/lorepanichi/pdh/rules"
	"github.com/lorepanichi/pdh/sortby"
	"github.com/lorepanichi/pdh/transform"
)

// defaultEnrichConcurrency bounds the parallel alert fetches per pass.
const defaultEnrichConcurrency = 4

// Stage is one step of a pass. A stage receives the sequence produced by
// the previous stage and returns the sequence handed to the next one; the
// loop itself stays ignorant of what a stage does internally.
type Stage interface {
	Name() string
	Run(ctx context.Context, seq record.Sequence) (record.Sequence, error)
}

type stageFunc struct {
	name string
	fn   func(ctx context.Context, seq record.Sequence) (record.Sequence, error)
}

func (s stageFunc) Name() string { return s.name }

func (s stageFunc) Run(ctx context.Context, seq record.Sequence) (record.Sequence, error) {
	return s.fn(ctx, seq)
}

// NewStage adapts a plain function to the Stage interface.
func NewStage(name string, fn func(ctx context.Context, seq record.Sequence) (record.Sequence, error)) Stage {
	return stageFunc{name: name, fn: fn}
}

// FilterStage drops every record not matching all of the filters.
func FilterStage(filters ...filter.Filter) Stage {
	return NewStage("filter", func(_ context.Context, seq record.Sequence) (record.Sequence, error) {
		return filter.Apply(seq, filters), nil
	})
}

// RulesStage runs the rule executables found in dir over the sequence.
// Discovery happens on every pass so watch mode picks up new scripts
// without a restart.
func RulesStage(dir string, logger *slog.Logger, opts rules.Options) Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return NewStage("rules", func(ctx context.Context, seq record.Sequence) (record.Sequence, error) {
		scripts, err := rules.Discover(dir)
		if err != nil {
			return nil, err
		}
		if len(scripts) == 0 {
			logger.Warn("no rule scripts found", "dir", dir)
		}
		return rules.Apply(ctx, seq, scripts, opts)
	})
}

// EnrichAlertsStage attaches each incident's alerts under the "alerts" key.
// Fetches run concurrently but the sequence keeps its original order.
func EnrichAlertsStage(fetch transform.AlertFetcher, concurrency int) Stage {
	if concurrency <= 0 {
		concurrency = defaultEnrichConcurrency
	}
	return NewStage("enrich-alerts", func(ctx context.Context, seq record.Sequence) (record.Sequence, error) {
		if fetch == nil || len(seq) == 0 {
			return seq, nil
		}

		enriched := make(record.Sequence, len(seq))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)

		for i, rec := range seq {
			g.Go(func() error {
				id := record.ID(rec)
				if id == "" {
					enriched[i] = rec
					return nil
				}
				alerts, err := fetch(gctx, id)
				if err != nil {
					return err
				}
				clone := record.Clone(rec)
				clone["alerts"] = alerts
				enriched[i] = clone
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, errors.Wrap(err, "Loop", "enrichAlerts", "fetch incident alerts")
		}
		return enriched, nil
	})
}

// TransformStage reshapes each record for display according to spec.
func TransformStage(spec *transform.Spec, preserve bool) Stage {
	return NewStage("transform", func(ctx context.Context, seq record.Sequence) (record.Sequence, error) {
		return transform.Apply(ctx, seq, spec, preserve)
	})
}

// SortStage orders the sequence by the given keys.
func SortStage(keys []string, reverse bool) Stage {
	return NewStage("sort", func(_ context.Context, seq record.Sequence) (record.Sequence, error) {
		if len(keys) == 0 {
			return seq, nil
		}
		return sortby.Sort(seq, keys, reverse)
	})
}
