package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/metropolis-api/pkg/config"
	"github.com/noah-isme/metropolis-api/pkg/database"
	"github.com/noah-isme/metropolis-api/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "metropolisctl",
	Short:         "Operate a Metropolis deployment",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(migrateCmd, timetableCmd, scheduleCmd, userCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// environment loads configuration and a logger for commands that talk to the deployment.
func environment() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logr, nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	return database.NewPostgres(ctx, cfg.Database)
}
