package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openshelf/shelfctl/pkg/config"
	"github.com/openshelf/shelfctl/pkg/mockapi"
)

var (
	mockListen string
	mockSeed   bool
)

var mockServerCmd = &cobra.Command{
	Use:   "mock-server",
	Short: "Run a local mock library service",
	Long: `Run a self-contained library service speaking the same API the CLI
talks to. Useful for local development and demos; state persists to
SQLite by default.`,
	RunE: runMockServer,
}

func runMockServer(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	if mockListen != "" {
		cfg.Mock.Listen = mockListen
	}

	if cmd.Flags().Changed("seed") {
		cfg.Mock.Seed = mockSeed
	}

	ctx, cancel := signal.NotifyContext(
		cmd.Context(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer cancel()

	srv := mockapi.NewServer(log, &cfg.Mock)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting mock server: %w", err)
	}

	<-ctx.Done()
	log.Info("Shutting down mock server")

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stopping mock server: %w", err)
	}

	return nil
}

func init() {
	mockServerCmd.Flags().StringVar(&mockListen, "listen", "",
		"listen address (overrides config)")
	mockServerCmd.Flags().BoolVar(&mockSeed, "seed", true,
		"seed fixture accounts and books")

	rootCmd.AddCommand(mockServerCmd)
}
