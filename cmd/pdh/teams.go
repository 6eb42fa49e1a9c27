package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/lorepanichi/pdh/errors"
	"github.com/lorepanichi/pdh/record"
	"github.com/lorepanichi/pdh/render"
	"github.com/lorepanichi/pdh/transform"
)

func cmdTeams(ctx context.Context, global globalFlags, args []string) error {
	if len(args) == 0 {
		args = []string{"ls"}
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "ls":
		return teamList(ctx, global, rest, false)
	case "mine":
		return teamList(ctx, global, rest, true)
	default:
		return errors.WrapConfig(
			fmt.Errorf("%w: unknown teams subcommand %q", errors.ErrInvalidConfig, sub),
			"CLI", "cmdTeams", "dispatch subcommand")
	}
}

func teamList(ctx context.Context, global globalFlags, args []string, mine bool) error {
	fs := flag.NewFlagSet("teams", flag.ContinueOnError)
	output := fs.String("o", render.ModeTable, "output mode: table, json, yaml, raw, plain")
	fields := fs.String("f", defaultTeamFields, "comma-separated fields to display")
	if err := fs.Parse(args); err != nil {
		return errors.WrapConfig(err, "CLI", "teamList", "parse flags")
	}

	a, err := newApp(global)
	if err != nil {
		return err
	}

	var teams record.Sequence
	if mine {
		me, err := a.client.Me(ctx)
		if err != nil {
			return err
		}
		teams = teamsOf(me)
	} else {
		teams, err = a.client.ListTeams(ctx)
		if err != nil {
			return err
		}
	}

	fieldList := splitCSV(*fields)
	return renderList(ctx, teams, transform.TeamSpec(fieldList),
		render.Options{Mode: *output, Fields: fieldList}, nil, false)
}

// teamsOf extracts the team records embedded in a user record.
func teamsOf(user record.Record) record.Sequence {
	raw, ok := record.At(user, "teams")
	if !ok {
		return record.Sequence{}
	}
	items, ok := raw.([]any)
	if !ok {
		return record.Sequence{}
	}

	teams := make(record.Sequence, 0, len(items))
	for _, item := range items {
		if team, ok := item.(map[string]any); ok {
			teams = append(teams, team)
		}
	}
	return teams
}

// myTeamIDs resolves the caller's team memberships for the -T mine flag.
func (a *app) myTeamIDs(ctx context.Context) ([]string, error) {
	me, err := a.client.Me(ctx)
	if err != nil {
		return nil, err
	}
	return teamsOf(me).IDs(), nil
}
