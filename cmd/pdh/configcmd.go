package main

import (
	"bufio"
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lorepanichi/pdh/config"
	"github.com/lorepanichi/pdh/errors"
	"github.com/lorepanichi/pdh/pd"
	"github.com/lorepanichi/pdh/record"
)

// cmdConfig asks for the API credentials, verifies them against the API
// and writes the config file.
func cmdConfig(ctx context.Context, global globalFlags, args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	force := fs.Bool("force", false, "overwrite an existing configuration file")
	if err := fs.Parse(args); err != nil {
		return errors.WrapConfig(err, "CLI", "cmdConfig", "parse flags")
	}

	path := global.configPath
	if path == "" {
		path = config.DefaultPath()
	}
	if _, err := os.Stat(path); err == nil && !*force {
		return errors.WrapConfig(
			fmt.Errorf("%w: %s already exists, pass --force to overwrite", errors.ErrInvalidConfig, path),
			"CLI", "cmdConfig", "check existing file")
	}

	reader := bufio.NewReader(os.Stdin)
	apiKey, err := prompt(reader, "API key")
	if err != nil {
		return err
	}
	email, err := prompt(reader, "Email")
	if err != nil {
		return err
	}

	cfg := config.Defaults()
	cfg.APIKey = apiKey
	cfg.Email = email

	// A throwaway client verifies the key and pins the operator's user ID
	// so listings can default to "my incidents".
	client, err := pd.NewClient(cfg.APIKey, cfg.Email, pd.WithTimeout(cfg.Timeout.AsDuration()))
	if err != nil {
		return err
	}
	me, err := client.Me(ctx)
	if err != nil {
		return err
	}
	cfg.UserID = record.ID(me)

	if err := config.Setup(path, cfg); err != nil {
		return err
	}

	fmt.Printf("Hello %s, configuration written to %s\n", record.StringAt(me, "name"), path)
	return nil
}

func prompt(reader *bufio.Reader, label string) (string, error) {
	fmt.Printf("%s: ", label)
	line, err := reader.ReadString('\n')
	if err != nil && !stderrors.Is(err, io.EOF) {
		return "", errors.WrapConfig(err, "CLI", "prompt", "read input")
	}
	return strings.TrimSpace(line), nil
}
