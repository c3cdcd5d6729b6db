// nexuscore — an internal-matching order router, simulated order-execution
// engine, US venue fee pipeline, and per-account risk-control loop.
//
// Architecture:
//
//	main.go                    — entry point: loads config, starts the engine, waits for SIGINT/SIGTERM
//	internal/engine/engine.go  — orchestrator: wires fee tables, venue, matcher, and risk controller
//	internal/matcher           — internal-matching order-execution driver in front of a venue
//	internal/simengine         — simulated per-security order-execution engine
//	internal/feetable          — per-venue execution fee tables + consolidated US dispatcher
//	internal/risk              — per-account risk control loop (ACTIVE/CLOSE_ORDERS/DISABLED)
//	internal/store             — recovery snapshot store (orders + report logs)
package main

import (
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nexuscore/internal/config"
	"nexuscore/internal/engine"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("NEXUS_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	eng, err := engine.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.Telemetry.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(eng.Metrics().Registry(), promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: cfg.Telemetry.ListenAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		logger.Info("metrics server started", "addr", cfg.Telemetry.ListenAddr)
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	logger.Info("nexuscore started",
		"venue_simulated", cfg.Venue.Simulated,
		"rendezvous_timeout", cfg.Router.RendezvousTimeout,
		"risk_tick_interval", cfg.Risk.TickInterval,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if metricsServer != nil {
		if err := metricsServer.Close(); err != nil {
			logger.Error("failed to stop metrics server", "error", err)
		}
	}

	eng.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
