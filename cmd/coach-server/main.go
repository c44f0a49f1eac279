// Command coach-server runs the LINE webhook as a long-lived HTTP server
// for local development and container deployments.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/line-video-coach/internal/config"
	"github.com/fpang/line-video-coach/internal/dispatch"
	"github.com/fpang/line-video-coach/internal/logging"
	"github.com/fpang/line-video-coach/internal/webhook"
)

// CLI flags
var (
	configFlag string
	portFlag   int
)

var rootCmd = &cobra.Command{
	Use:   "coach-server",
	Short: "LINE video marketing coach webhook server",
	Long: `Coach Server receives LINE webhook deliveries, transcribes the videos
users send, and pushes back a marketing review with a rewritten script.

Configuration comes from environment variables, optionally layered over a
YAML file.

Examples:
  coach-server
  coach-server --port 9090
  coach-server --config config.yaml`,
	RunE: runMain,
}

func init() {
	rootCmd.Flags().StringVarP(&configFlag, "config", "c", "", "Path to YAML config file")
	rootCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides SERVER_PORT)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) error {
	initStart := time.Now()
	logging.Init()

	cfg, err := config.Load(configFlag)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if portFlag > 0 {
		cfg.Server.Port = portFlag
	}

	router := dispatch.Build(cfg)
	if cfg.LINE.ChannelSecret == "" {
		log.Warn().Msg("LINE_CHANNEL_SECRET is not set, webhook requests will fail")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      newRouter(webhook.NewHandler(cfg.LINE.ChannelSecret, router)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	startup := logging.NewStartupLogger("coach-server")
	for stage, name := range router.Backends() {
		startup.Backend(stage, name)
	}
	startup.
		Config("address", srv.Addr).
		Config("deliveryMode", cfg.Pipeline.DeliveryMode).
		Config("language", cfg.Pipeline.Language).
		Feature("configFile", configFlag != "").
		InitDuration(time.Since(initStart)).
		Log()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Starting webhook server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-sigCh:
	}

	log.Info().Msg("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
	if err := router.Wait(ctx); err != nil {
		log.Warn().Err(err).Msg("Detached pipelines still running at shutdown")
	}
	log.Info().Msg("Server stopped")
	return nil
}
