package main

import (
	"fmt"
	"os"

	"github.com/cuongbtq/learning-hub/internal/bootstrap"
	"github.com/cuongbtq/learning-hub/internal/config"
	"github.com/cuongbtq/learning-hub/internal/storage"
	"github.com/cuongbtq/learning-hub/shared/logger"
	"github.com/spf13/cobra"
)

// cli holds what every subcommand needs once the root command has loaded
// the configuration
type cli struct {
	configPath string
	cfg        *config.Config
	logger     *logger.Logger
	db         bootstrap.Database
	store      *storage.Store
}

// newRootCmd builds the command tree. The caller closes the returned cli
// after Execute, whether or not the command failed.
func newRootCmd() (*cobra.Command, *cli) {
	c := &cli{}

	defaultConfigPath := os.Getenv("QUEUECTL_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/queuectl/config.yaml"
	}

	rootCmd := &cobra.Command{
		Use:           "queuectl",
		Short:         "Inspect and feed the material processing queue",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.open(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&c.configPath, "config", defaultConfigPath, "Path to configuration file")

	rootCmd.AddCommand(c.migrateCmd())
	rootCmd.AddCommand(c.enqueueCmd())
	rootCmd.AddCommand(c.statsCmd())
	rootCmd.AddCommand(c.listCmd())
	rootCmd.AddCommand(c.getCmd())

	return rootCmd, c
}

func (c *cli) open(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}

	if err := cfg.ValidateDatabase(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if cfg.Queue.MaxAttempts <= 0 {
		return fmt.Errorf("invalid config: queue max_attempts must be greater than 0")
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	store, db, err := bootstrap.OpenQueueStore(cmd.Context(), cfg, appLogger.Logger)
	if err != nil {
		appLogger.Close()
		return err
	}

	c.cfg = cfg
	c.logger = appLogger
	c.db = db
	c.store = store
	return nil
}

func (c *cli) close() error {
	var err error
	if c.db != nil {
		err = c.db.Close()
		c.db = nil
	}
	if c.logger != nil {
		c.logger.Close()
		c.logger = nil
	}
	return err
}
