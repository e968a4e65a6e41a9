package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tapterm/paybroker/internal/app"
	"github.com/tapterm/paybroker/internal/config"
	"github.com/tapterm/paybroker/internal/logging"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closer, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return app.RunServer(ctx, cfg)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closer, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()
			return app.Migrate(cmd.Context(), cfg)
		},
	}
}

func allocateCmd() *cobra.Command {
	var store string
	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Mint the next terminal id for a store",
		Example: `  paybroker allocate --store STORE01
  paybroker allocate --store NORTH --config /etc/paybroker.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closer, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()

			terminalID, errAlloc := app.AllocateTerminal(cmd.Context(), cfg, store)
			if errAlloc != nil {
				return errAlloc
			}
			fmt.Fprintln(cmd.OutOrStdout(), terminalID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&store, "store", "s", "", "store code (defaults to DEFAULT_STORE_CODE)")
	return cmd
}

// setup loads configuration and configures logging for every command.
func setup() (config.Config, io.Closer, error) {
	path := config.ResolveConfigPath(configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, err
	}
	closer, errLog := logging.Setup(cfg.Log)
	if errLog != nil {
		return config.Config{}, nil, fmt.Errorf("configure logging: %w", errLog)
	}
	log.WithField("config", path).Debug("configuration loaded")
	return cfg, closer, nil
}
