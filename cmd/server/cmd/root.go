package cmd

import (
	"fmt"
	"os"

	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

// Execute runs the root command. It is called by main.main.
func Execute() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "server",
		Short: "RSVP server - event registration backend",
		Long: `RSVP server runs the event registration API.

The server supports:
- Account sign-up and login with bearer tokens
- Event publishing with photo uploads
- Registration and cancellation with email confirmations
- Background delivery through a PostgreSQL job queue`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file path (optional, uses env vars by default)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "log format (json, console) (default: json)")

	serve := newServeCommand(flags)
	root.RunE = serve.RunE

	root.AddCommand(serve)
	root.AddCommand(newMigrateCommand(flags))
	root.AddCommand(newTokenCommand(flags))
	root.AddCommand(newVersionCommand())
	root.AddCommand(newHealthcheckCommand())
	return root
}

// loadConfig reads env vars (and the --config file when given) and applies
// the logging flag overrides.
func loadConfig(flags *globalFlags) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.LoadFile(flags.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, err
	}

	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Logging.Format = flags.logFormat
	}
	return cfg, nil
}
