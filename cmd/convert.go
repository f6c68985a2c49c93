package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"vcrkit/config"
	"vcrkit/convert"
	"vcrkit/runner"
)

var (
	convertOutput   string
	convertFormat   string
	convertFailFast bool
)

var convertCmd = &cobra.Command{
	Use:   "convert <file>...",
	Short: "Convert flat cassettes to the nested schema",
	Long: `Convert flat-schema VCR cassettes to the nested schema. Files are rewritten
in place unless --output is given for a single input. A file is only written
when every interaction in it converts.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if convertFormat != "" {
			cfg.Convert.Format = convertFormat
		}
		if convertFailFast {
			cfg.Convert.OnError = config.PolicyAbort
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		if convertOutput != "" {
			if len(args) != 1 {
				return fmt.Errorf("--output requires exactly one input file")
			}
			result, err := convert.NewConverter(cfg.Convert, log).ConvertFile(args[0], convertOutput)
			if err != nil {
				return err
			}
			fmt.Printf("Converted %d interactions: %s -> %s\n", result.Interactions, result.Input, result.Output)
			return nil
		}

		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer closeDatabase(db)

		result := runner.New(cfg, db, log).Convert(args, nil)
		for _, f := range result.Report.Files {
			if f.Err != nil {
				fmt.Printf("FAILED     %s: %s\n", f.Input, f.Error)
				continue
			}
			fmt.Printf("converted  %s (%d interactions)\n", f.Input, f.Interactions)
		}
		fmt.Printf("\n%d converted, %d failed\n", result.Report.Succeeded, result.Report.Failed)
		if result.RunID != "" {
			fmt.Printf("Run: %s\n", result.RunID)
		}

		if result.Report.Failed > 0 {
			return fmt.Errorf("%d of %d cassettes failed to convert", result.Report.Failed, len(args))
		}
		return nil
	},
}

func init() {
	convertCmd.Flags().StringVar(&convertOutput, "output", "", "output file (single input only)")
	convertCmd.Flags().StringVar(&convertFormat, "format", "", "output format: yaml, json or auto")
	convertCmd.Flags().BoolVar(&convertFailFast, "fail-fast", false, "stop at the first cassette that fails")

	rootCmd.AddCommand(convertCmd)
}
