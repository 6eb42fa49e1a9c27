// Package main implements pdh, an incident management CLI. It lists,
// filters, decorates and acts on incidents through a record pipeline:
// fetch, rule executables, filters, transformation, sort, render.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/lorepanichi/pdh/errors"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "pdh"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if ctx.Err() != nil {
			// Interrupted watch passes exit cleanly.
			os.Exit(0)
		}
		_, _ = fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(errors.ExitCode(err))
	}
}

func run(ctx context.Context, args []string) error {
	root := flag.NewFlagSet(appName, flag.ContinueOnError)
	root.Usage = printDetailedHelp

	var global globalFlags
	root.StringVar(&global.configPath, "c",
		getEnv("PDH_CONFIG", ""),
		"Path to configuration file (env: PDH_CONFIG)")
	root.StringVar(&global.configPath, "config",
		getEnv("PDH_CONFIG", ""),
		"Path to configuration file (env: PDH_CONFIG)")
	root.StringVar(&global.logLevel, "log-level",
		getEnv("PDH_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error (env: PDH_LOG_LEVEL)")
	root.StringVar(&global.logFormat, "log-format",
		getEnv("PDH_LOG_FORMAT", "text"),
		"Log format: json, text (env: PDH_LOG_FORMAT)")

	if err := root.Parse(args); err != nil {
		return errors.WrapConfig(err, "CLI", "run", "parse flags")
	}

	rest := root.Args()
	if len(rest) == 0 {
		printDetailedHelp()
		return nil
	}

	command, rest := rest[0], rest[1:]
	switch command {
	case "config":
		return cmdConfig(ctx, global, rest)
	case "version":
		fmt.Printf("%s %s (build %s)\n", appName, Version, BuildTime)
		return nil
	case "user":
		return cmdUser(ctx, global, rest)
	case "teams":
		return cmdTeams(ctx, global, rest)
	case "svc":
		return cmdServices(ctx, global, rest)
	case "inc":
		return cmdIncidents(ctx, global, rest)
	case "help", "-h", "--help":
		printDetailedHelp()
		return nil
	default:
		printDetailedHelp()
		return errors.WrapConfig(
			fmt.Errorf("%w: unknown command %q", errors.ErrInvalidConfig, command),
			"CLI", "run", "dispatch command")
	}
}
