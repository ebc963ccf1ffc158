package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/care-notify/internal/config"
	"github.com/care-notify/internal/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "care-notify",
		Short:         "Notification sync and dedup service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(bootstrapCmd())
	rootCmd.AddCommand(cleanupCmd())
	rootCmd.AddCommand(tokenCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		stop()
		os.Exit(1)
	}
}

// loadConfig reads .env when present, then the environment, and configures
// the global logger.
func loadConfig() (*config.Config, error) {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Options{
		Level:       cfg.LogLevel,
		File:        cfg.LogFile,
		Development: cfg.IsDevelopment(),
	})
	if envErr != nil {
		log.Debug().Msg("no .env file found, reading from environment")
	}
	return cfg, nil
}
