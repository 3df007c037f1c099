package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/traceway-systems/traceway-edge/common/health"
	"github.com/traceway-systems/traceway-edge/common/logging"
	"github.com/traceway-systems/traceway-edge/gateway/internal/config"
	"github.com/traceway-systems/traceway-edge/gateway/internal/proxy"
	"github.com/traceway-systems/traceway-edge/gateway/internal/resolver"
	"github.com/traceway-systems/traceway-edge/gateway/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("gateway"))
	logging.SetDefault(logger)

	slog.Info("Starting gateway service",
		slog.Int("port", cfg.Server.Port),
		slog.String("upstream", cfg.Upstream.Name),
		slog.Duration("resolver_ttl", cfg.Upstream.TTL),
	)

	// Upstream resolution: DNS by default, a fixed address when configured.
	lookup := resolver.DNSLookup(cfg.Upstream.Port)
	if cfg.Upstream.StaticAddr != "" {
		lookup = resolver.StaticLookup(cfg.Upstream.StaticAddr)
	}
	res := resolver.New(cfg.Upstream.Name, cfg.Upstream.TTL, lookup)

	forwarder := proxy.New(res, proxy.Options{
		ConnectTimeout: cfg.Upstream.ConnectTimeout,
		ReadTimeout:    cfg.Upstream.ReadTimeout,
	}, logger.Logger)

	// The backend is a hard dependency: the gateway does not serve until
	// the backend's readiness endpoint has answered successfully.
	probeTarget := "http://" + cfg.Upstream.Name
	if cfg.Upstream.StaticAddr != "" {
		probeTarget = "http://" + cfg.Upstream.StaticAddr
	} else if cfg.Upstream.Port != 0 {
		probeTarget = fmt.Sprintf("http://%s:%d", cfg.Upstream.Name, cfg.Upstream.Port)
	}

	orch := health.NewOrchestrator(logger.Logger)
	if err := orch.Register(health.Check{
		Name:             "backend",
		Prober:           health.NewHTTPProber(probeTarget+cfg.Health.Path, cfg.Health.Timeout),
		Interval:         cfg.Health.Interval,
		Timeout:          cfg.Health.Timeout,
		FailureThreshold: cfg.Health.FailureThreshold,
		StartGrace:       cfg.Health.StartGrace,
		Hard:             true,
	}); err != nil {
		log.Fatalf("Failed to register backend health check: %v", err)
	}

	orchCtx, orchCancel := context.WithCancel(context.Background())
	defer orchCancel()
	orch.Start(orchCtx)

	slog.Info("Waiting for backend readiness",
		slog.String("probe", probeTarget+cfg.Health.Path),
	)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.Health.WaitReadyTimeout)
	if err := orch.WaitReady(waitCtx); err != nil {
		waitCancel()
		log.Fatalf("Backend never became ready: %v", err)
	}
	waitCancel()
	slog.Info("Backend ready, accepting traffic")

	router := server.NewRouter(forwarder, cfg.Static.Dir, cfg.Static.APIPrefix, orch)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Gateway listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down gateway...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	orch.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	slog.Info("Gateway stopped")
}
