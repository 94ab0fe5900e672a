// Command playoutd runs the playout engine: it connects to every configured
// sequencer channel, reconciles live playout state, and serves it over the
// HTTP/WebSocket gateway and optionally NATS.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/playout/config"
	"github.com/c360/playout/engine"
	"github.com/c360/playout/gateway"
	"github.com/c360/playout/metric"
	"github.com/c360/playout/notify"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "playoutd:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "playout.yaml", "path to configuration file")
	logLevel := flag.String("log-level", envOr("PLAYOUT_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	flag.Parse()

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger.Info("configuration loaded",
		"platform", cfg.Platform.ID,
		"channels", len(cfg.Channels),
		"nats", cfg.NATS.Enabled)

	registry := metric.NewRegistry()
	notifier := notify.NewNotifier(logger)
	defer notifier.Close()

	if cfg.NATS.Enabled {
		pub, err := notify.NewNATSPublisher(cfg.NATS, notifier, logger)
		if err != nil {
			return err
		}
		defer pub.Close()
	}

	eng := engine.New(cfg, registry, notifier, logger)
	if err := eng.Initialize(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		return err
	}

	gw := gateway.New(cfg.Gateway, eng, notifier, registry, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return gw.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return eng.Stop(shutdownTimeout)
	})

	return g.Wait()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
