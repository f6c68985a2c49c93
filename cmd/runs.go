package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vcrkit/storage"
)

var (
	runsLimit  int
	runsDelete string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded convert and sanitize runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := requireDatabase()
		if err != nil {
			return err
		}
		defer closeDatabase(db)

		runs, err := db.ListRuns(runsLimit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}

		if len(runs) == 0 {
			fmt.Println("No runs found.")
			return nil
		}

		fmt.Printf("%-36s %-9s %-20s %6s %8s %7s %s\n", "ID", "Kind", "Started", "Files", "Changed", "Failed", "Root")
		fmt.Println(strings.Repeat("-", 110))
		for _, run := range runs {
			fmt.Printf("%-36s %-9s %-20s %6d %8d %7d %s\n",
				run.ID,
				run.Kind,
				run.StartedAt.Format("2006-01-02 15:04:05"),
				run.FilesTotal,
				run.FilesChanged,
				run.FilesFailed,
				run.Root)
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a run and its per-file results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := requireDatabase()
		if err != nil {
			return err
		}
		defer closeDatabase(db)

		run, err := db.GetRun(args[0])
		if err != nil {
			return err
		}
		files, err := db.GetRunFiles(run.ID)
		if err != nil {
			return err
		}

		fmt.Printf("Run:           %s\n", run.ID)
		fmt.Printf("Kind:          %s\n", run.Kind)
		if run.Root != "" {
			fmt.Printf("Root:          %s\n", run.Root)
		}
		fmt.Printf("Dry run:       %t\n", run.DryRun)
		fmt.Printf("Started:       %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
		if run.FinishedAt != nil {
			fmt.Printf("Finished:      %s\n", run.FinishedAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("Files:         %d (%d changed, %d failed)\n", run.FilesTotal, run.FilesChanged, run.FilesFailed)
		if run.Kind == storage.RunKindSanitize {
			fmt.Printf("Org IDs:       %d\n", run.OrgIDCount)
			fmt.Printf("User IDs:      %d\n", run.UserIDCount)
			fmt.Printf("Substitutions: %d\n", run.Substitutions)
		}
		if run.Error != "" {
			fmt.Printf("Error:         %s\n", run.Error)
		}

		if len(files) > 0 {
			fmt.Println()
			for _, f := range files {
				line := fmt.Sprintf("%-10s %s", f.Status, f.Path)
				if f.Error != "" {
					line += ": " + f.Error
				}
				fmt.Println(line)
			}
		}
		return nil
	},
}

var runsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete one run (--run) or the whole ledger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := requireDatabase()
		if err != nil {
			return err
		}
		defer closeDatabase(db)

		if runsDelete != "" {
			if err := db.DeleteRun(runsDelete); err != nil {
				return err
			}
			fmt.Printf("Run '%s' deleted\n", runsDelete)
			return nil
		}

		if err := db.ClearAllRuns(); err != nil {
			return err
		}
		fmt.Println("All runs cleared")
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs to list (0 for all)")
	runsClearCmd.Flags().StringVar(&runsDelete, "run", "", "run ID to delete")

	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsClearCmd)
	rootCmd.AddCommand(runsCmd)
}
