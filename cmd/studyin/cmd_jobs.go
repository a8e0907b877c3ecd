package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yinkev/studyin/internal/telemetry"
)

// jobsCmd groups the scheduled maintenance jobs
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Scheduled maintenance jobs",
}

// refitCmd is the weekly difficulty re-fit slot. Item parameters are
// authored for now; the job validates its inputs and reports what a re-fit
// would cover so the cron wiring can land before the estimator does.
var refitCmd = &cobra.Command{
	Use:   "refit",
	Short: "Weekly item-parameter re-fit (placeholder)",
	RunE:  runRefit,
}

func init() {
	jobsCmd.AddCommand(refitCmd)
}

func runRefit(cmd *cobra.Command, args []string) error {
	attempts, skipped, err := telemetry.ReadAttempts(cfg.EventsPath)
	if err != nil {
		return err
	}
	items := make(map[string]int)
	for _, a := range attempts {
		items[a.ItemID]++
	}
	fmt.Printf("refit: %d attempts over %d items (%d malformed lines skipped); no parameters changed\n",
		len(attempts), len(items), skipped)
	return nil
}
