package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vcrkit/config"
	"vcrkit/runner"
)

var (
	sanitizeDryRun   bool
	sanitizeFailFast bool
)

var sanitizeCmd = &cobra.Command{
	Use:   "sanitize <root>",
	Short: "Replace PII in a fixture collection with test values",
	Long: `Discover organization and user identifiers across every fixture under root,
then rewrite all fixtures so each of them, and every email and name field,
carries a stable test value. Running it twice changes nothing the second time.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if sanitizeFailFast {
			cfg.Sanitize.OnError = config.PolicyAbort
		}

		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer closeDatabase(db)

		ctx, cancel := signalContext()
		defer cancel()

		result, runErr := runner.New(cfg, db, log).Sanitize(ctx, args[0], sanitizeDryRun, nil)
		if result.Report == nil {
			return runErr
		}

		report := result.Report
		for _, f := range report.Files {
			line := fmt.Sprintf("%-10s %s", f.Status, f.Path)
			if f.Substitutions > 0 {
				line += fmt.Sprintf(" (%d substitutions)", f.Substitutions)
			}
			if f.Error != "" {
				line += ": " + f.Error
			}
			fmt.Println(line)
		}

		fmt.Printf("\nProcessed %d fixtures: %d sanitized, %d unchanged, %d failed\n",
			len(report.Files), report.Sanitized(), report.Unchanged(), report.Failed())
		fmt.Printf("Organization IDs discovered (%d): %s\n", len(report.OrgIDs), joinIDs(report.OrgIDs))
		fmt.Printf("User IDs discovered (%d): %s\n", len(report.UserIDs), joinIDs(report.UserIDs))
		if report.DryRun {
			fmt.Println("Dry run: no files were written")
		}
		if result.RunID != "" {
			fmt.Printf("Run: %s\n", result.RunID)
		}

		if runErr != nil {
			return runErr
		}
		if n := report.Failed(); n > 0 {
			return fmt.Errorf("%d of %d fixtures failed", n, len(report.Files))
		}
		return nil
	},
}

func joinIDs(ids []int64) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ", ")
}

func init() {
	sanitizeCmd.Flags().BoolVar(&sanitizeDryRun, "dry-run", false, "report what would change without writing")
	sanitizeCmd.Flags().BoolVar(&sanitizeFailFast, "fail-fast", false, "abort before writing anything if a fixture cannot be parsed")

	rootCmd.AddCommand(sanitizeCmd)
}
