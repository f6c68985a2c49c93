package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"vcrkit/export"
)

var (
	exportRunID string
	outputFile  string
	inputFile   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a run report to JSON",
	Long:  `Export a ledger run and its per-file results to a versioned JSON report. Output paths ending in .gz are gzip-compressed.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := requireDatabase()
		if err != nil {
			return err
		}
		defer closeDatabase(db)

		if err := export.NewExportManager(cfg, db).ExportRun(exportRunID, outputFile); err != nil {
			return err
		}

		fmt.Printf("Run '%s' exported to '%s'\n", exportRunID, outputFile)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a run report into the ledger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := requireDatabase()
		if err != nil {
			return err
		}
		defer closeDatabase(db)

		run, err := export.NewExportManager(cfg, db).ImportRun(inputFile)
		if err != nil {
			return err
		}

		fmt.Printf("Run '%s' imported from '%s'\n", run.ID, inputFile)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportRunID, "run", "", "run ID to export")
	exportCmd.Flags().StringVar(&outputFile, "output", "", "output file path")
	exportCmd.MarkFlagRequired("run")
	exportCmd.MarkFlagRequired("output")

	importCmd.Flags().StringVar(&inputFile, "input", "", "input file path")
	importCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
