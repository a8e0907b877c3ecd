package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yinkev/studyin/internal/content"
)

// validateItemsCmd validates every *.item.json under the scope directories
var validateItemsCmd = &cobra.Command{
	Use:   "validate-items",
	Short: "Validate all item files in the configured scope directories",
	Long: `Walks the scope directories, parses and validates every *.item.json
file. Counts go to stdout, per-file problems to stderr. Exits non-zero when
any file fails.`,
	RunE: runValidateItems,
}

func runValidateItems(cmd *cobra.Command, args []string) error {
	bank, issues, err := content.LoadBank(cmd.Context(), cfg.ScopeDirs, cfg.LosPath)
	if err != nil {
		return err
	}

	for _, issue := range issues {
		fmt.Fprintln(os.Stderr, issue.String())
	}
	fmt.Printf("items: %d valid, %d published, %d failed\n",
		len(bank.Items), len(bank.Published()), len(issues))

	if len(issues) > 0 {
		// The error text repeats nothing; the details already went to stderr.
		return fmt.Errorf("%d item file(s) failed validation", len(issues))
	}
	return nil
}
