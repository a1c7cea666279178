// dsanotifier posts a daily batch of practice questions to a Telegram or
// Slack channel.
//
// Usage:
//
//	dsanotifier [--config path] [--run-now]
//	dsanotifier status [--json]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dsanotifier/internal/app"
	"dsanotifier/internal/config"
	"dsanotifier/internal/telemetry"
)

// version is set with ldflags at build time.
var version = "dev"

const shutdownTimeout = 2 * time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var runNow bool

	rootCmd := &cobra.Command{
		Use:           "dsanotifier",
		Short:         "Send a daily batch of DSA practice questions to a chat channel",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotifier(cmd.Context(), configPath, runNow)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a JSON config file (optional)")
	rootCmd.Flags().BoolVar(&runNow, "run-now", false, "Run one delivery immediately and exit")

	rootCmd.AddCommand(newStatusCmd(&configPath))

	return rootCmd
}

func runNotifier(ctx context.Context, configPath string, runNow bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, closeLog, err := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	if runNow {
		defer application.Close()
		out := application.RunOnce(ctx)
		logger.Info("run-now finished", "run_id", out.RunID, "status", out.Status)
		return nil
	}

	if err := application.Start(ctx); err != nil {
		application.Close()
		return fmt.Errorf("application failed to start: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received, initiating graceful shutdown")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Stop(stopCtx); err != nil {
		return fmt.Errorf("error during graceful shutdown: %w", err)
	}
	return nil
}
