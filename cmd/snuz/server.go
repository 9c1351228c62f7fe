package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/snuz/internal/app"
	"github.com/vovakirdan/snuz/internal/config"
	"github.com/vovakirdan/snuz/internal/log"
)

func newServerCmd(opts *rootOptions) *cobra.Command {
	var (
		addr   string
		dbPath string
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the REST API and the presence relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			cfg.UpdateFrom(config.Config{Addr: addr, DatabasePath: dbPath})

			// The server owns stdout; only the presence client moves logs to stderr.
			logger := log.New(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(&cfg, logger)
			if err != nil {
				return err
			}

			logger.Info().Str("addr", cfg.Addr).Msg("starting snuz server")
			if err := application.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("server exited with error")
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path")
	return cmd
}
