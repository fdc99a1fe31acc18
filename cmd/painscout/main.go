package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/painscout/painscout/internal/config"
	"github.com/painscout/painscout/internal/logging"
	"github.com/painscout/painscout/internal/storage"
)

// skipStorage marks commands that never open the database
const skipStorage = "skip-storage"

var (
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
	store      storage.Storage
)

var rootCmd = &cobra.Command{
	Use:   "painscout",
	Short: "Turn community pain points into scored product opportunities",
	Long: `painscout classifies raw community posts, clusters the real pain points by
meaning, and scores each cluster as a product opportunity.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.Logging)
		if err != nil {
			return err
		}
		if cmd.Annotations[skipStorage] == "true" {
			return nil
		}

		store, err = storage.NewStorage(cmd.Context(), &cfg.Storage, logger)
		if err != nil {
			return fmt.Errorf("failed to open database %s: %w", cfg.Storage.Path, err)
		}
		logger.Debug("opened database", zap.String("path", cfg.Storage.Path))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeResources()
	},
}

func closeResources() {
	if store != nil {
		if err := store.Close(); err != nil && logger != nil {
			logger.Warn("failed to close database", zap.Error(err))
		}
		store = nil
	}
	if logger != nil {
		_ = logger.Sync()
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		fmt.Sprintf("config file (default ./%s if present)", config.DefaultFile))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		closeResources()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
