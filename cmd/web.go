package cmd

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"vcrkit/web"
)

var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Start the web service",
	Long:  `Start the web service to trigger convert and sanitize runs, browse the run ledger and stream run progress over a websocket.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := requireDatabase()
		if err != nil {
			return err
		}
		defer closeDatabase(db)

		ctx, cancel := signalContext()
		defer cancel()

		err = web.NewServer(cfg, db, log).Start(ctx)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(webCmd)
}
