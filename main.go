package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"near-rpc-provider/internal/config"
	"near-rpc-provider/internal/gateway"
	"near-rpc-provider/internal/logger"
	"near-rpc-provider/internal/metrics"
	"near-rpc-provider/internal/provider"
)

const configFilename = "config.yaml"

func main() {
	cfg, err := config.LoadConfig(configFilename)
	if err != nil {
		// Logging is not set up yet.
		logger.Setup("info")
		logger.New("main").Fatal("failed to load configuration", "err", err)
	}
	logger.Setup(cfg.LogLevel)
	log := logger.New("main")
	log.Info("starting NEAR RPC gateway", "endpoints", len(cfg.RpcEndpoints))

	m := metrics.NewMetrics()

	p, err := provider.New(cfg.RpcEndpoints, provider.OptionsFromConfig(cfg), logger.New("near"), m)
	if err != nil {
		log.Fatal("failed to initialize provider", "err", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := p.CheckAvailableRPCs(ctx); err != nil {
		log.Error("initial endpoint check failed", "err", err)
	}
	p.Tracker().Start(ctx, cfg.CheckInterval)

	gw := gateway.NewGateway(p, p.Tracker(), cfg.RequestTimeout, log, m)

	server := &http.Server{
		Addr:    cfg.GatewayPort,
		Handler: gw.Handler(),
	}
	metricsServer := &http.Server{
		Addr:    cfg.MetricsPort,
		Handler: m.MetricsHandler(),
	}

	go func() {
		log.Info("gateway listening", "addr", cfg.GatewayPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("gateway server failed", "err", err)
		}
	}()

	go func() {
		log.Info("metrics listening", "addr", cfg.MetricsPort, "path", "/metrics")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("metrics server failed", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig.String())

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("gateway shutdown failed", "err", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics shutdown failed", "err", err)
	}
	log.Info("gateway stopped")
}
