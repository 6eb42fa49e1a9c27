package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/lorepanichi/pdh/errors"
	"github.com/lorepanichi/pdh/filter"
	"github.com/lorepanichi/pdh/render"
	"github.com/lorepanichi/pdh/transform"
)

func cmdServices(ctx context.Context, global globalFlags, args []string) error {
	if len(args) == 0 {
		args = []string{"ls"}
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "ls":
		return serviceList(ctx, global, rest)
	default:
		return errors.WrapConfig(
			fmt.Errorf("%w: unknown svc subcommand %q", errors.ErrInvalidConfig, sub),
			"CLI", "cmdServices", "dispatch subcommand")
	}
}

func serviceList(ctx context.Context, global globalFlags, args []string) error {
	fs := flag.NewFlagSet("svc ls", flag.ContinueOnError)
	output := fs.String("o", render.ModeTable, "output mode: table, json, yaml, raw, plain")
	fields := fs.String("f", defaultServiceFields, "comma-separated fields to display")
	statuses := fs.String("s", defaultServiceStatuses,
		"comma-separated service statuses to keep, or \"all\"")
	sortKeys := fs.String("sort", "", "comma-separated sort keys (display fields)")
	reverse := fs.Bool("reverse", false, "reverse the sorted order")
	if err := fs.Parse(args); err != nil {
		return errors.WrapConfig(err, "CLI", "serviceList", "parse flags")
	}

	a, err := newApp(global)
	if err != nil {
		return err
	}
	services, err := a.client.ListServices(ctx)
	if err != nil {
		return err
	}

	if *statuses != "all" {
		services = filter.Apply(services, []filter.Filter{
			filter.InSet("status", splitCSV(*statuses)),
		})
	}

	fieldList := splitCSV(*fields)
	return renderList(ctx, services, transform.ServiceSpec(fieldList),
		render.Options{Mode: *output, Fields: fieldList}, splitCSV(*sortKeys), *reverse)
}
