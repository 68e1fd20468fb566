package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"qcpack/internal/config"
	"qcpack/internal/logging"
)

const Version = "1.0.0"

func loadEnvironment() {
	logger := logging.GetLogger()

	// Try to load .env file from current directory
	envFile := ".env"
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			logger.WithField("file", envFile).WithError(err).Warn("Error loading .env file")
		} else {
			logger.WithField("file", envFile).Debug("Loaded environment variables")
		}
	} else {
		// Try to load from the application directory
		if execPath, err := os.Executable(); err == nil {
			appDir := filepath.Dir(execPath)
			envFile = filepath.Join(appDir, ".env")
			if _, err := os.Stat(envFile); err == nil {
				if err := godotenv.Load(envFile); err != nil {
					logger.WithField("file", envFile).WithError(err).Warn("Error loading .env file")
				} else {
					logger.WithField("file", envFile).Debug("Loaded environment variables")
				}
			}
		}
	}
}

// Execute runs the CLI.
func Execute() error {
	loadEnvironment()

	var configFile string
	var logLevel string
	var timeout time.Duration

	rootCmd := &cobra.Command{
		Use:   "qcpack",
		Short: "Quantum circuit bin packing tool",
		Long:  "Packs batches of small quantum circuits onto shared fixed-topology backends",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logLevel != "" {
				if err := logging.SetLogLevel(logLevel); err != nil {
					return fmt.Errorf("invalid log level: %w", err)
				}
				if err := logging.SetPackerLogLevel(logLevel); err != nil {
					return fmt.Errorf("invalid log level: %w", err)
				}
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (trace, debug, info, warn, error)")

	packCmd := &cobra.Command{
		Use:   "pack",
		Short: "Run a packing configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return runPack(ctx, configFile)
		},
	}
	packCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to packing configuration file")
	packCmd.Flags().DurationVar(&timeout, "timeout", 0, "Overall run timeout (0 = none)")
	packCmd.MarkFlagRequired("config")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a packing configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfigFile(configFile)
		},
	}
	validateCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to packing configuration file")
	validateCmd.MarkFlagRequired("config")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("qcpack %s\n", Version)
		},
	}

	rootCmd.AddCommand(packCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)

	return rootCmd.Execute()
}

func validateConfigFile(configFile string) error {
	logger := logging.GetLogger()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}
	for _, b := range cfg.Backends {
		if _, err := b.Build(); err != nil {
			return err
		}
	}
	for _, c := range cfg.Circuits {
		if _, err := c.Build(); err != nil {
			return err
		}
	}
	logger.WithFields(map[string]interface{}{
		"config":   configFile,
		"backends": len(cfg.Backends),
		"circuits": len(cfg.Circuits),
	}).Info("Configuration is valid")
	return nil
}
