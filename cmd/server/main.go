package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/RaisinBrand/CedarsApp/internal/config"
	"github.com/RaisinBrand/CedarsApp/internal/ingest"
	"github.com/RaisinBrand/CedarsApp/internal/logging"
	"github.com/RaisinBrand/CedarsApp/internal/metrics"
	"github.com/RaisinBrand/CedarsApp/internal/publish"
	"github.com/RaisinBrand/CedarsApp/internal/server"
)

const serviceName = "emg-bridge"

// Overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to configuration file (defaults and EMG_* variables are used when empty)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", serviceName, version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging, serviceName, version)

	logger.Info("Service starting",
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("mode", cfg.Server.Mode),
		slog.String("udp_address", cfg.Server.UDPAddress()),
		slog.Int("capacity", cfg.Store.Capacity),
		slog.String("byte_order", cfg.Server.ByteOrder),
		slog.String("http_address", cfg.HTTP.ListenAddress()),
		slog.String("http_path", cfg.HTTP.Path),
		slog.Bool("mqtt_enabled", cfg.MQTT.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(registry)

	handler, err := ingest.New(cfg)
	if err != nil {
		logger.Error("Failed to create ingest handler", slog.String("error", err.Error()))
		os.Exit(1)
	}

	udpServer := server.NewUDPServer(&cfg.Server, logger, handler, appMetrics)
	httpServer := server.NewHTTPServer(cfg, logger, handler.Store(), udpServer, appMetrics, registry, version)

	var publisher *publish.Publisher
	if cfg.MQTT.Enabled {
		publisher = publish.NewPublisher(cfg.MQTT, logger, handler.Store(), appMetrics,
			publish.NewClient(cfg.MQTT, logger))

		// The client keeps retrying in the background, a slow broker does not block startup.
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := publisher.Connect(connectCtx); err != nil {
			logger.Warn("MQTT broker not reachable yet, continuing",
				slog.String("broker", cfg.MQTT.BrokerURL()),
				slog.String("error", err.Error()),
			)
		}
		connectCancel()

		udpServer.SetNotifier(publisher.Notify)
		httpServer.SetPublisher(publisher)
		go publisher.Run(ctx)
	}

	if err := udpServer.Start(); err != nil {
		logger.Error("Failed to start UDP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		udpServer.Stop()
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	if err := udpServer.Stop(); err != nil {
		logger.Error("Error stopping UDP server", slog.String("error", err.Error()))
	}

	// Stops the publisher loop
	cancel()
	if publisher != nil {
		publisher.Close()
	}

	stats := udpServer.GetStatistics()
	logger.Info("Final server statistics",
		slog.Uint64("packets_received", stats.PacketsReceived),
		slog.Uint64("packets_accepted", stats.PacketsAccepted),
		slog.Uint64("length_errors", stats.LengthErrors),
		slog.Uint64("parse_errors", stats.ParseErrors),
	)

	logger.Info("Service stopped")
}
