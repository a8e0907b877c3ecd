package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yinkev/studyin/internal/analyzer"
	"github.com/yinkev/studyin/internal/telemetry"
)

// analyzeCmd runs the offline analytics job
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Roll the attempt log into the analytics snapshot",
	Long: `Reads the attempt NDJSON, computes time-to-mastery, ELG/min, confusion
edges, speed-accuracy quadrants, reliability and distractor flags, and writes
the schema-versioned snapshot the serving surface reads.`,
	RunE: runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	snap, err := analyzeAttempts(cmd)
	if err != nil {
		return err
	}
	fmt.Printf("snapshot written: %s (%d attempts, %d learners)\n",
		cfg.AnalyticsOutPath, snap.Totals.Attempts, snap.Totals.Learners)

	// The local file stays authoritative; a failed push is only a warning.
	if cfg.Supabase.Enabled {
		mirror, err := telemetry.NewSupabaseMirror(cfg.Supabase.URL, cfg.Supabase.ServiceRoleKey)
		if err != nil {
			logger.Warn("snapshot push skipped", zap.Error(err))
			return nil
		}
		if err := mirror.Snapshot(cmd.Context(), snap); err != nil {
			logger.Warn("snapshot push failed", zap.Error(err))
		} else {
			logger.Info("snapshot pushed to supabase")
		}
	}
	return nil
}

// analyzeAttempts reads from the SQLite mirror when one is configured and
// from the NDJSON log otherwise.
func analyzeAttempts(cmd *cobra.Command) (*analyzer.Snapshot, error) {
	if cfg.Ingest.SQLitePath == "" {
		return analyzer.Run(cfg.EventsPath, cfg.AnalyticsOutPath)
	}

	mirror, err := telemetry.NewSQLiteMirror(cfg.Ingest.SQLitePath)
	if err != nil {
		return nil, err
	}
	defer mirror.Close()
	attempts, err := mirror.ReadMirroredAttempts(cmd.Context())
	if err != nil {
		return nil, err
	}
	snap := analyzer.Analyze(attempts, time.Now().UnixMilli())
	if err := snap.Write(cfg.AnalyticsOutPath); err != nil {
		return nil, err
	}
	return snap, nil
}
