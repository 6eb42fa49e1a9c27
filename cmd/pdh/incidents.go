package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/lorepanichi/pdh/errors"
	"github.com/lorepanichi/pdh/filter"
	"github.com/lorepanichi/pdh/metric"
	"github.com/lorepanichi/pdh/pd"
	"github.com/lorepanichi/pdh/query"
	"github.com/lorepanichi/pdh/record"
	"github.com/lorepanichi/pdh/render"
	"github.com/lorepanichi/pdh/rules"
	"github.com/lorepanichi/pdh/transform"
)

func cmdIncidents(ctx context.Context, global globalFlags, args []string) error {
	if len(args) == 0 {
		args = []string{"ls"}
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "ls":
		return incidentList(ctx, global, rest)
	case "ack":
		return incidentAck(ctx, global, rest)
	case "resolve":
		return incidentResolve(ctx, global, rest)
	case "snooze":
		return incidentSnooze(ctx, global, rest)
	case "reassign":
		return incidentReassign(ctx, global, rest)
	default:
		return errors.WrapConfig(
			fmt.Errorf("%w: unknown inc subcommand %q", errors.ErrInvalidConfig, sub),
			"CLI", "cmdIncidents", "dispatch subcommand")
	}
}

type incidentListFlags struct {
	everything bool
	user       string
	onlyNew    bool

	ack        bool
	resolve    bool
	snooze     bool
	snoozeSecs int

	high bool
	low  bool

	watch    bool
	interval time.Duration

	rules     bool
	rulesPath string

	regexp            string
	excludedRegexp    string
	serviceRe         string
	excludedServiceRe string

	output      string
	fields      string
	alerts      bool
	alertFields string

	sortKeys string
	reverse  bool

	teams       string
	metricsAddr string
}

func parseIncidentListFlags(args []string) (*incidentListFlags, error) {
	f := &incidentListFlags{}
	fs := flag.NewFlagSet("inc ls", flag.ContinueOnError)

	fs.BoolVar(&f.everything, "e", false, "include resolved incidents and every assignee")
	fs.BoolVar(&f.everything, "everything", false, "include resolved incidents and every assignee")
	fs.StringVar(&f.user, "u", "", "only incidents assigned to this user (name or email)")
	fs.StringVar(&f.user, "user", "", "only incidents assigned to this user (name or email)")
	fs.BoolVar(&f.onlyNew, "n", false, "only triggered incidents")
	fs.BoolVar(&f.onlyNew, "new", false, "only triggered incidents")

	fs.BoolVar(&f.ack, "a", false, "acknowledge every listed incident")
	fs.BoolVar(&f.ack, "ack", false, "acknowledge every listed incident")
	fs.BoolVar(&f.resolve, "r", false, "resolve every listed incident")
	fs.BoolVar(&f.resolve, "resolve", false, "resolve every listed incident")
	fs.BoolVar(&f.snooze, "s", false, "snooze every listed incident")
	fs.BoolVar(&f.snooze, "snooze", false, "snooze every listed incident")
	fs.IntVar(&f.snoozeSecs, "d", defaultSnoozeSeconds, "snooze duration in seconds")

	fs.BoolVar(&f.high, "high", false, "only high urgency")
	fs.BoolVar(&f.low, "low", false, "only low urgency")

	fs.BoolVar(&f.watch, "w", false, "repeat the listing on an interval")
	fs.BoolVar(&f.watch, "watch", false, "repeat the listing on an interval")
	fs.DurationVar(&f.interval, "t", query.DefaultInterval, "watch interval")
	fs.DurationVar(&f.interval, "timeout", query.DefaultInterval, "watch interval")

	fs.BoolVar(&f.rules, "rules", false, "run the rule executables over the fetched incidents")
	fs.StringVar(&f.rulesPath, "rules-path", "", "directory holding rule executables")

	fs.StringVar(&f.regexp, "R", "", "keep incidents whose title matches this regexp")
	fs.StringVar(&f.regexp, "regexp", "", "keep incidents whose title matches this regexp")
	fs.StringVar(&f.excludedRegexp, "excluded-regexp", "", "drop incidents whose title matches this regexp")
	fs.StringVar(&f.serviceRe, "S", "", "keep incidents whose service matches this regexp")
	fs.StringVar(&f.serviceRe, "service-re", "", "keep incidents whose service matches this regexp")
	fs.StringVar(&f.excludedServiceRe, "excluded-service-re", "", "drop incidents whose service matches this regexp")

	fs.StringVar(&f.output, "o", render.ModeTable, "output mode: table, json, yaml, raw, plain")
	fs.StringVar(&f.output, "output", render.ModeTable, "output mode: table, json, yaml, raw, plain")
	fs.StringVar(&f.fields, "f", defaultIncidentFields, "comma-separated fields to display")
	fs.StringVar(&f.fields, "fields", defaultIncidentFields, "comma-separated fields to display")
	fs.BoolVar(&f.alerts, "alerts", false, "attach each incident's alerts")
	fs.StringVar(&f.alertFields, "alert-fields", defaultAlertFields, "comma-separated alert fields")

	fs.StringVar(&f.sortKeys, "sort", "", "comma-separated sort keys (display fields)")
	fs.BoolVar(&f.reverse, "reverse", false, "reverse the sorted order")

	fs.StringVar(&f.teams, "T", "", "comma-separated team IDs, or \"mine\"")
	fs.StringVar(&f.teams, "teams", "", "comma-separated team IDs, or \"mine\"")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics here while watching")

	if err := fs.Parse(args); err != nil {
		return nil, errors.WrapConfig(err, "CLI", "incidentList", "parse flags")
	}

	selected := 0
	for _, b := range []bool{f.ack, f.resolve, f.snooze} {
		if b {
			selected++
		}
	}
	if selected > 1 {
		return nil, errors.WrapConfig(
			fmt.Errorf("%w: choose one of --ack, --resolve, --snooze", errors.ErrInvalidConfig),
			"CLI", "incidentList", "check action flags")
	}
	return f, nil
}

func incidentList(ctx context.Context, global globalFlags, args []string) error {
	f, err := parseIncidentListFlags(args)
	if err != nil {
		return err
	}

	a, err := newApp(global)
	if err != nil {
		return err
	}

	opts, err := incidentQueryOptions(ctx, a, f)
	if err != nil {
		return err
	}

	selects, err := incidentSelectStages(a, f)
	if err != nil {
		return err
	}

	displays, renderOpts, err := incidentDisplayStages(a, f)
	if err != nil {
		return err
	}

	loop, err := query.NewLoop(query.Options{
		Fetch: func(ctx context.Context) (record.Sequence, error) {
			return a.client.ListIncidents(ctx, opts)
		},
		Select:      selects,
		Display:     displays,
		Action:      incidentBulkAction(a, f, os.Stdout),
		Render:      renderOpts,
		Out:         os.Stdout,
		Interval:    f.interval,
		ClearScreen: f.watch,
		Logger:      a.logger.With("component", "query-loop"),
		Metrics:     a.registry.Pass(),
	})
	if err != nil {
		return err
	}

	if !f.watch {
		return loop.RunOnce(ctx)
	}

	if f.metricsAddr != "" {
		server := metric.NewServer(f.metricsAddr, a.registry)
		if err := server.Start(); err != nil {
			return err
		}
		defer func() { _ = server.Stop() }()
		a.logger.Info("metrics listening", "addr", server.Addr())
	}
	return loop.Watch(ctx)
}

// incidentQueryOptions resolves the user and team flags into API query
// options. Name resolution happens once here, never inside the loop.
func incidentQueryOptions(ctx context.Context, a *app, f *incidentListFlags) (pd.ListIncidentsOptions, error) {
	opts := pd.ListIncidentsOptions{
		Statuses: []string{"triggered", "acknowledged"},
	}
	if f.everything {
		opts.Statuses = []string{"triggered", "acknowledged", "resolved"}
	}
	if f.onlyNew {
		opts.Statuses = []string{"triggered"}
	}

	switch {
	case f.high && !f.low:
		opts.Urgencies = []string{"high"}
	case f.low && !f.high:
		opts.Urgencies = []string{"low"}
	}

	switch {
	case f.user != "":
		id, err := a.client.FindUserID(ctx, f.user)
		if err != nil {
			return opts, err
		}
		opts.UserIDs = []string{id}
	case !f.everything && a.cfg.UserID != "":
		opts.UserIDs = []string{a.cfg.UserID}
	}

	for _, team := range splitCSV(f.teams) {
		if team == "mine" {
			mine, err := a.myTeamIDs(ctx)
			if err != nil {
				return opts, err
			}
			opts.TeamIDs = append(opts.TeamIDs, mine...)
			continue
		}
		opts.TeamIDs = append(opts.TeamIDs, team)
	}

	return opts, nil
}

// incidentSelectStages builds the stages that narrow the fetched records:
// rule executables first, then the title and service filters.
func incidentSelectStages(a *app, f *incidentListFlags) ([]query.Stage, error) {
	var stages []query.Stage

	if f.rules {
		dir := f.rulesPath
		if dir == "" {
			dir = a.cfg.DefaultRulesPath
		}
		if dir == "" {
			return nil, errors.WrapConfig(
				fmt.Errorf("%w: --rules needs --rules-path or default_rules_path", errors.ErrMissingConfig),
				"CLI", "incidentList", "resolve rules directory")
		}
		metrics := a.registry.Pass()
		logger := a.logger
		stages = append(stages, query.RulesStage(dir, logger, rules.Options{
			Policy: rules.PolicyAbort,
			OnSuccess: func(script string) {
				metrics.RecordRuleRun(script, nil)
			},
			OnError: func(script string, err error) {
				metrics.RecordRuleRun(script, err)
				logger.Warn("rule script failed", "script", script, "error", err)
			},
		}))
	}

	var filters []filter.Filter
	if f.regexp != "" {
		flt, err := filter.Regexp("title", f.regexp)
		if err != nil {
			return nil, err
		}
		filters = append(filters, flt)
	}
	if f.excludedRegexp != "" {
		flt, err := filter.NotRegexp("title", f.excludedRegexp)
		if err != nil {
			return nil, err
		}
		filters = append(filters, flt)
	}
	if f.serviceRe != "" {
		flt, err := filter.Regexp("service.summary", f.serviceRe)
		if err != nil {
			return nil, err
		}
		filters = append(filters, flt)
	}
	if f.excludedServiceRe != "" {
		flt, err := filter.NotRegexp("service.summary", f.excludedServiceRe)
		if err != nil {
			return nil, err
		}
		filters = append(filters, flt)
	}
	if len(filters) > 0 {
		stages = append(stages, query.FilterStage(filters...))
	}

	return stages, nil
}

// incidentDisplayStages builds the enrichment, transformation and sort
// stages plus the matching render options.
func incidentDisplayStages(a *app, f *incidentListFlags) ([]query.Stage, render.Options, error) {
	fields := splitCSV(f.fields)
	if f.alerts && !containsField(fields, "alerts") {
		fields = append(fields, "alerts")
	}

	renderOpts := render.Options{Mode: f.output, Fields: fields}

	var stages []query.Stage
	if f.alerts {
		stages = append(stages, query.EnrichAlertsStage(a.client.ListAlerts, 0))
	}

	if f.output != render.ModeRaw {
		spec := transform.IncidentSpec(fields, transform.SpecOptions{
			AlertFields: splitCSV(f.alertFields),
			FetchAlerts: a.client.ListAlerts,
		})
		stages = append(stages, query.TransformStage(spec, false))
	}

	if keys := splitCSV(f.sortKeys); len(keys) > 0 {
		stages = append(stages, query.SortStage(keys, f.reverse))
	}

	return stages, renderOpts, nil
}

func incidentBulkAction(a *app, f *incidentListFlags, out io.Writer) query.Action {
	metrics := a.registry.Pass()
	switch {
	case f.ack:
		return func(ctx context.Context, ids []string) error {
			if _, err := a.client.Acknowledge(ctx, ids); err != nil {
				return err
			}
			metrics.RecordAction("acknowledge", len(ids))
			confirmLines(out, f.output, "acknowledged", ids)
			return nil
		}
	case f.resolve:
		return func(ctx context.Context, ids []string) error {
			if _, err := a.client.Resolve(ctx, ids); err != nil {
				return err
			}
			metrics.RecordAction("resolve", len(ids))
			confirmLines(out, f.output, "resolved", ids)
			return nil
		}
	case f.snooze:
		return func(ctx context.Context, ids []string) error {
			if err := a.client.Snooze(ctx, ids, f.snoozeSecs); err != nil {
				return err
			}
			metrics.RecordAction("snooze", len(ids))
			confirmLines(out, f.output, fmt.Sprintf("snoozed for %ds", f.snoozeSecs), ids)
			return nil
		}
	}
	return nil
}

// confirmLines prints one confirmation per incident. Machine-readable
// modes stay clean.
func confirmLines(w io.Writer, mode, verb string, ids []string) {
	if mode == render.ModeJSON || mode == render.ModeYAML || mode == render.ModeRaw {
		return
	}
	green := color.New(color.FgGreen)
	for _, id := range ids {
		_, _ = green.Fprintf(w, "✔ %s %s\n", id, verb)
	}
}

func containsField(fields []string, name string) bool {
	for _, field := range fields {
		if field == name {
			return true
		}
	}
	return false
}

func incidentAck(ctx context.Context, global globalFlags, args []string) error {
	fs := flag.NewFlagSet("inc ack", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return errors.WrapConfig(err, "CLI", "incidentAck", "parse flags")
	}
	ids := fs.Args()
	if len(ids) == 0 {
		return errors.WrapConfig(
			fmt.Errorf("%w: at least one incident id required", errors.ErrInvalidConfig),
			"CLI", "incidentAck", "check arguments")
	}

	a, err := newApp(global)
	if err != nil {
		return err
	}
	if _, err := a.client.Acknowledge(ctx, ids); err != nil {
		return err
	}
	a.registry.Pass().RecordAction("acknowledge", len(ids))
	confirmLines(os.Stdout, render.ModeTable, "acknowledged", ids)
	return nil
}

func incidentResolve(ctx context.Context, global globalFlags, args []string) error {
	fs := flag.NewFlagSet("inc resolve", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return errors.WrapConfig(err, "CLI", "incidentResolve", "parse flags")
	}
	ids := fs.Args()
	if len(ids) == 0 {
		return errors.WrapConfig(
			fmt.Errorf("%w: at least one incident id required", errors.ErrInvalidConfig),
			"CLI", "incidentResolve", "check arguments")
	}

	a, err := newApp(global)
	if err != nil {
		return err
	}
	if _, err := a.client.Resolve(ctx, ids); err != nil {
		return err
	}
	a.registry.Pass().RecordAction("resolve", len(ids))
	confirmLines(os.Stdout, render.ModeTable, "resolved", ids)
	return nil
}

func incidentSnooze(ctx context.Context, global globalFlags, args []string) error {
	fs := flag.NewFlagSet("inc snooze", flag.ContinueOnError)
	duration := fs.Int("d", defaultSnoozeSeconds, "snooze duration in seconds")
	if err := fs.Parse(args); err != nil {
		return errors.WrapConfig(err, "CLI", "incidentSnooze", "parse flags")
	}
	ids := fs.Args()
	if len(ids) == 0 {
		return errors.WrapConfig(
			fmt.Errorf("%w: at least one incident id required", errors.ErrInvalidConfig),
			"CLI", "incidentSnooze", "check arguments")
	}

	a, err := newApp(global)
	if err != nil {
		return err
	}
	if err := a.client.Snooze(ctx, ids, *duration); err != nil {
		return err
	}
	a.registry.Pass().RecordAction("snooze", len(ids))
	confirmLines(os.Stdout, render.ModeTable, fmt.Sprintf("snoozed for %ds", *duration), ids)
	return nil
}

func incidentReassign(ctx context.Context, global globalFlags, args []string) error {
	fs := flag.NewFlagSet("inc reassign", flag.ContinueOnError)
	user := fs.String("u", "", "assignee name or email")
	if err := fs.Parse(args); err != nil {
		return errors.WrapConfig(err, "CLI", "incidentReassign", "parse flags")
	}
	ids := fs.Args()
	if *user == "" || len(ids) == 0 {
		return errors.WrapConfig(
			fmt.Errorf("%w: usage: inc reassign -u <user> <ids...>", errors.ErrInvalidConfig),
			"CLI", "incidentReassign", "check arguments")
	}

	a, err := newApp(global)
	if err != nil {
		return err
	}
	userID, err := a.client.FindUserID(ctx, *user)
	if err != nil {
		return err
	}
	if _, err := a.client.Reassign(ctx, ids, userID); err != nil {
		return err
	}
	a.registry.Pass().RecordAction("reassign", len(ids))
	confirmLines(os.Stdout, render.ModeTable, "reassigned to "+*user, ids)
	return nil
}
