package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/snuz/internal/config"
	"github.com/vovakirdan/snuz/internal/log"
)

type rootOptions struct {
	cfgFile  string
	logLevel string

	// resolved in PersistentPreRunE
	cfg    config.Config
	logger *zerolog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "snuz",
		Short: "snuz keeps a sleep group in sync",
		Long:  "snuz runs the group presence server and a terminal presence client for it.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Logs go to stderr so the presence client can own stdout.
			bootstrap := log.NewWithWriter(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}, opts.logLevel)

			cfg, path, err := config.Load(bootstrap, opts.cfgFile)
			if err != nil {
				return err
			}
			cfg.UpdateFrom(config.Config{LogLevel: opts.logLevel})

			opts.cfg = cfg
			opts.logger = log.NewWithWriter(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}, cfg.LogLevel)
			opts.logger.Debug().Str("config", path).Msg("configuration loaded")
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default ./config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error, silent)")

	cmd.AddCommand(newServerCmd(opts))
	cmd.AddCommand(newPresenceCmd(opts))

	return cmd
}
