package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/lorepanichi/pdh/config"
	"github.com/lorepanichi/pdh/metric"
	"github.com/lorepanichi/pdh/pd"
	"github.com/lorepanichi/pdh/record"
	"github.com/lorepanichi/pdh/render"
	"github.com/lorepanichi/pdh/sortby"
	"github.com/lorepanichi/pdh/transform"
)

// app bundles the collaborators every subcommand needs: the loaded
// configuration, the API client, the logger and the metrics registry.
type app struct {
	cfg      *config.Config
	client   *pd.Client
	logger   *slog.Logger
	registry *metric.Registry
}

func newApp(global globalFlags) (*app, error) {
	cfg, err := config.Load(global.configPath)
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if global.logLevel != "" {
		level = global.logLevel
	}
	logger := setupLogger(level, global.logFormat)
	slog.SetDefault(logger)

	registry := metric.NewRegistry()

	client, err := pd.NewClient(cfg.APIKey, cfg.Email,
		pd.WithBaseURL(cfg.APIURL),
		pd.WithTimeout(cfg.Timeout.AsDuration()),
		pd.WithLogger(logger),
		pd.WithMetrics(registry.Pass()),
		pd.WithUserAgent(appName+"/"+Version),
	)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		client:   client,
		logger:   logger,
		registry: registry,
	}, nil
}

// renderList is the short pipeline behind the directory listings: reshape
// for display, sort, render. Raw mode skips the reshaping.
func renderList(ctx context.Context, seq record.Sequence, spec *transform.Spec,
	opts render.Options, sortKeys []string, reverse bool) error {

	out := seq
	if opts.Mode != render.ModeRaw {
		var err error
		out, err = transform.Apply(ctx, seq, spec, false)
		if err != nil {
			return err
		}
	}

	if len(sortKeys) > 0 {
		var err error
		out, err = sortby.Sort(out, sortKeys, reverse)
		if err != nil {
			return err
		}
	}

	return render.Render(os.Stdout, out, opts)
}
