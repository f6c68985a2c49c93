package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vcrkit/config"
	"vcrkit/logger"
	"vcrkit/storage"
)

var (
	cfgFile  string
	logLevel string

	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "vcrkit",
	Short: "VCR cassette conversion and sanitization",
	Long: `Tools for recorded HTTP fixtures (VCR cassettes).
Converts flat cassettes to the nested schema, replaces PII with stable test
values across a fixture collection, and serves cassettes for playback.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		log, err = logger.New(cfg.Logging, nil)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger.Init(log)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
}

// openDatabase opens the run ledger, or returns nil when the ledger is
// disabled in config.
func openDatabase() (*storage.Database, error) {
	if !cfg.Database.Enabled {
		return nil, nil
	}

	db, err := storage.NewDatabase(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

// requireDatabase is openDatabase for commands that only make sense with a
// ledger.
func requireDatabase() (*storage.Database, error) {
	if !cfg.Database.Enabled {
		return nil, fmt.Errorf("run ledger is disabled (database.enabled is false)")
	}
	return openDatabase()
}

func closeDatabase(db *storage.Database) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
