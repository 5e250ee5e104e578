package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/nikhilsahni7/signal-relay/pkg/access"
	"github.com/nikhilsahni7/signal-relay/pkg/config"
	"github.com/nikhilsahni7/signal-relay/pkg/metrics"
	"github.com/nikhilsahni7/signal-relay/pkg/server"
	"github.com/nikhilsahni7/signal-relay/pkg/signaling"
	"github.com/nikhilsahni7/signal-relay/pkg/util"
)

func main() {
	// Load local .env (dev only)
	_ = godotenv.Load()

	cfg, envErr := config.FromEnv()

	cmd := &cobra.Command{
		Use:           "signal-relay",
		Short:         "Room-based WebRTC signaling relay",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if envErr != nil {
				return envErr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	config.BindFlags(cmd.Flags(), &cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(2)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	util.Init(cfg.LogLevel, cfg.LogFormat)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	hub := signaling.NewHub(signaling.WithMetrics(m))
	srv := server.New(cfg, hub, access.FromCodes(cfg.RoomCodes), m, reg)

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}
	util.Info("Starting server on %s (env=%s, exclude_sender=%t, room_codes=%d)",
		ln.Addr(), cfg.Env, cfg.ExcludeSender, len(cfg.RoomCodes))

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		srv.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		util.Info("Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		util.Error("HTTP server shutdown failed: %v", err)
	}
	// Hijacked WebSocket connections are not tracked by http.Server.
	srv.Close()

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	util.Info("Server stopped with %d rooms open", hub.RoomCount())
	return nil
}
