// Command gatewayd runs the voice-interaction gateway relay: a WebSocket
// server that accepts device connections, dispatches finished utterances
// to an AI backend, and streams the response back as text and/or audio.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/snugbit/toygateway/pkg/cache"
	"github.com/snugbit/toygateway/pkg/gateway"
	"github.com/snugbit/toygateway/pkg/logging"
	"github.com/snugbit/toygateway/pkg/tts"
	"github.com/snugbit/toygateway/pkg/tts/providers/aurora"
	"github.com/snugbit/toygateway/pkg/tts/providers/cascade"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "gatewayd:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gatewayd",
		Short: "Voice-interaction gateway relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
	return root
}

func runServe() error {
	cfg := gateway.LoadConfig()
	logger := logging.Default("gateway: ")

	queue, err := openQueue(cfg)
	if err != nil {
		return fmt.Errorf("open cache queue: %w", err)
	}
	defer queue.Close()

	registry := buildTTSRegistry(cfg, logger)
	ai := gateway.NewHTTPAIBackend(cfg.AIBackendURL, cfg.AIBackendToken, cfg.AICallTimeout)

	manager := gateway.NewManager(cfg, ai, registry, queue, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/", manager.WebSocketHandler())
	mux.HandleFunc("/health", manager.HealthHandler())
	mux.Handle("/metrics", manager.MetricsHandler())

	server := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoPrintf("listening on %s", cfg.BindAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.InfoPrintf("shutting down")
	}

	manager.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

func openQueue(cfg gateway.Config) (cache.Queue, error) {
	if cfg.CacheDir == "" {
		return cache.NewMemory(), nil
	}
	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		return nil, err
	}
	return cache.OpenBadger(cfg.CacheDir)
}

func buildTTSRegistry(cfg gateway.Config, logger logging.Logger) *tts.Registry {
	registry := tts.NewRegistry(cfg.DefaultTTSProvider)
	if cfg.TTSDisabled {
		return registry
	}
	if cfg.AuroraAPIKey != "" {
		registry.Register(aurora.New(aurora.Config{
			APIKey:  cfg.AuroraAPIKey,
			BaseURL: cfg.AuroraBaseURL,
			Logger:  logger,
		}))
	}
	if cfg.CascadeAPIKey != "" {
		registry.Register(cascade.New(cascade.Config{
			APIKey:  cfg.CascadeAPIKey,
			BaseURL: cfg.CascadeBaseURL,
			Logger:  logger,
		}))
	}
	return registry
}
