package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vcrkit/playback"
)

var (
	serveCassette string
	serveStrategy string
	servePort     int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a cassette over HTTP",
	Long: `Answer HTTP requests from a recorded cassette. Flat cassettes are converted
in memory. Requests with no recording receive the configured not-found response.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveStrategy != "" {
			cfg.Playback.MatchingStrategy = serveStrategy
		}
		if servePort != 0 {
			cfg.Server.ListenPort = servePort
		}

		cassette, err := playback.LoadCassette(serveCassette)
		if err != nil {
			return err
		}

		player := playback.NewPlayer(cassette, cfg.Playback, log)
		address := fmt.Sprintf("%s:%d", cfg.Server.ListenHost, cfg.Server.ListenPort)
		srv := &http.Server{
			Addr:              address,
			Handler:           playback.NewHandler(player),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, cancel := signalContext()
		defer cancel()

		go func() {
			<-ctx.Done()
			log.Info("shutting down playback server")
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			srv.Shutdown(shutdownCtx)
		}()

		log.Info("serving cassette",
			zap.String("cassette", serveCassette),
			zap.Int("interactions", len(cassette.Interactions)),
			zap.String("address", "http://"+address),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("playback server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveCassette, "cassette", "", "cassette file to serve")
	serveCmd.Flags().StringVar(&serveStrategy, "matching-strategy", "", "request matching strategy: exact or fuzzy")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (defaults to server.listen_port)")
	serveCmd.MarkFlagRequired("cassette")

	rootCmd.AddCommand(serveCmd)
}
