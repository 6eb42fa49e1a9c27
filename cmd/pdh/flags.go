package main

import (
	"fmt"
	"os"
	"strings"
)

// globalFlags are accepted before the subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// splitCSV turns a comma-separated flag value into its trimmed, non-empty
// parts.
func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - incident management for humans

Usage: %s [global options] <command> [options]

Commands:
  inc ls        List incidents (filters, rules, watch mode, bulk actions)
  inc ack       Acknowledge incidents by ID
  inc resolve   Resolve incidents by ID
  inc snooze    Snooze incidents by ID (-d seconds, default 14400)
  inc reassign  Reassign incidents to a user (-u name or email)
  user ls       List users
  user get      Find users by name, email or ID
  teams ls      List all teams
  teams mine    List the teams you belong to
  svc ls        List services
  config        Write the configuration file (interactive)
  version       Show version information

Global options:
  -c, --config  Path to configuration file (env: PDH_CONFIG)
  --log-level   debug, info, warn, error (env: PDH_LOG_LEVEL)
  --log-format  json, text (env: PDH_LOG_FORMAT)

Examples:
  # your open incidents, refreshed every 10 seconds
  %s inc ls -w -t 10s

  # everyone's high-urgency incidents as JSON
  %s inc ls -e --high -o json

  # acknowledge everything currently assigned to you
  %s inc ls -a

Run '%s <command> -h' for command options.
`, appName, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}
