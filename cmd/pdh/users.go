package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/lorepanichi/pdh/errors"
	"github.com/lorepanichi/pdh/record"
	"github.com/lorepanichi/pdh/render"
	"github.com/lorepanichi/pdh/transform"
)

func cmdUser(ctx context.Context, global globalFlags, args []string) error {
	if len(args) == 0 {
		args = []string{"ls"}
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "ls":
		return userList(ctx, global, rest)
	case "get":
		return userGet(ctx, global, rest)
	default:
		return errors.WrapConfig(
			fmt.Errorf("%w: unknown user subcommand %q", errors.ErrInvalidConfig, sub),
			"CLI", "cmdUser", "dispatch subcommand")
	}
}

func userList(ctx context.Context, global globalFlags, args []string) error {
	fs := flag.NewFlagSet("user ls", flag.ContinueOnError)
	output := fs.String("o", render.ModeTable, "output mode: table, json, yaml, raw, plain")
	fields := fs.String("f", defaultUserFields, "comma-separated fields to display")
	if err := fs.Parse(args); err != nil {
		return errors.WrapConfig(err, "CLI", "userList", "parse flags")
	}

	a, err := newApp(global)
	if err != nil {
		return err
	}
	users, err := a.client.ListUsers(ctx)
	if err != nil {
		return err
	}

	fieldList := splitCSV(*fields)
	return renderList(ctx, users, transform.UserSpec(fieldList),
		render.Options{Mode: *output, Fields: fieldList}, nil, false)
}

// userGet searches by name or email; when the search comes back empty the
// query is tried as a user ID.
func userGet(ctx context.Context, global globalFlags, args []string) error {
	fs := flag.NewFlagSet("user get", flag.ContinueOnError)
	output := fs.String("o", render.ModeTable, "output mode: table, json, yaml, raw, plain")
	fields := fs.String("f", defaultUserFields, "comma-separated fields to display")
	if err := fs.Parse(args); err != nil {
		return errors.WrapConfig(err, "CLI", "userGet", "parse flags")
	}

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		return errors.WrapConfig(
			fmt.Errorf("%w: usage: user get <name, email or id>", errors.ErrInvalidConfig),
			"CLI", "userGet", "check arguments")
	}

	a, err := newApp(global)
	if err != nil {
		return err
	}

	users, err := a.client.SearchUsers(ctx, query)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		user, err := a.client.GetUser(ctx, query)
		if err != nil {
			return errors.WrapData(
				fmt.Errorf("%w: no user matching %q", errors.ErrNotFound, query),
				"CLI", "userGet", "resolve user")
		}
		users = record.Sequence{user}
	}

	fieldList := splitCSV(*fields)
	return renderList(ctx, users, transform.UserSpec(fieldList),
		render.Options{Mode: *output, Fields: fieldList}, nil, false)
}
