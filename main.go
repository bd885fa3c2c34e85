package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-authgate/wpgate/internal/bootstrap"
	"github.com/go-authgate/wpgate/internal/config"
	"github.com/go-authgate/wpgate/internal/logger"
	"github.com/go-authgate/wpgate/internal/version"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wpgate",
		Short:         "OAuth2 authorization server and JWT relay for the WordPress REST API",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newServerCmd(),
		newProxyCmd(),
		newClientCmd(),
		newVersionCmd(),
	)
	return root
}

func newServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the OAuth2 authorization server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLogger(func(cfg *config.Config, log *zap.Logger) error {
				log.Info("starting wpgate server", zap.String("version", version.String()))
				return bootstrap.Run(commandContext(cmd), cfg, log)
			})
		},
	}
}

func newProxyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jwt-proxy",
		Short: "Start the JWT relay proxy in front of the WordPress JWT plugin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLogger(func(cfg *config.Config, log *zap.Logger) error {
				log.Info("starting wpgate jwt-proxy", zap.String("version", version.String()))
				return bootstrap.RunProxy(commandContext(cmd), cfg, log)
			})
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			version.Print(cmd.OutOrStdout())
		},
	}
}

// withLogger loads the configuration, builds the logger and flushes it after fn returns.
func withLogger(fn func(cfg *config.Config, log *zap.Logger) error) error {
	cfg := config.Load()
	log, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	if err := fn(cfg, log); err != nil {
		log.Error("command failed", zap.Error(err))
		return err
	}
	return nil
}

// commandContext returns the command's context, or Background when run outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
