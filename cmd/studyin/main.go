package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yinkev/studyin/internal/config"
	"github.com/yinkev/studyin/internal/logging"
)

var (
	// Global flags
	verbose bool

	// Logger
	logger *zap.Logger

	// cfg is built once in the persistent pre-run and shared by all commands.
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "studyin",
	Short: "Studyin - adaptive study engine (1.1.0)",
	Long: `Studyin is the adaptive study engine behind the item bank: Rasch/EAP
ability estimation, blueprint-constrained form assembly, a Thompson-sampling
topic scheduler, an FSRS retention lane and the telemetry ingest + analytics
pipeline that feeds them.

Run "studyin serve" to start the HTTP surface.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real environments set variables directly.
		_ = godotenv.Load()

		var err error
		cfg, err = config.FromEnv()
		if err != nil {
			return err
		}
		if verbose {
			cfg.Debug = true
		}

		zapCfg := zap.NewProductionConfig()
		if cfg.Debug {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if err := logging.Initialize(cfg.StateDir, cfg.Debug, cfg.LogLevel); err != nil {
			return fmt.Errorf("failed to initialize debug logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateItemsCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(jobsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
