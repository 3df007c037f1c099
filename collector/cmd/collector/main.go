package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/traceway-systems/traceway-edge/collector/internal/config"
	"github.com/traceway-systems/traceway-edge/collector/internal/ratelimit"
	"github.com/traceway-systems/traceway-edge/collector/internal/receiver"
	"github.com/traceway-systems/traceway-edge/collector/internal/server"
	"github.com/traceway-systems/traceway-edge/collector/internal/service"
	"github.com/traceway-systems/traceway-edge/common/health"
	"github.com/traceway-systems/traceway-edge/common/logging"
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
	).With(logging.Service("collector"))
	logging.SetDefault(logger)

	slog.Info("Starting collector service",
		slog.Int("http_port", cfg.Server.HTTPPort),
		slog.Int("grpc_port", cfg.Server.GRPCPort),
		slog.String("log_level", cfg.Logging.Level),
	)
	if *configPath != "" {
		slog.Info("Loaded configuration", slog.String("config_path", *configPath))
	}

	// Rate limiter
	var limiter ratelimit.RateLimiter
	if cfg.Ingestion.RateLimitEnabled {
		limiter, err = ratelimit.NewRedisRateLimiter(
			cfg.Ingestion.RedisURL,
			cfg.Ingestion.RateLimitRequests,
			cfg.Ingestion.RateLimitWindow,
			false,
		)
		if err != nil {
			slog.Warn("Failed to initialize Redis rate limiter, continuing without rate limiting",
				logging.Err(err),
			)
			limiter = &ratelimit.NoOpRateLimiter{}
		} else {
			slog.Info("Rate limiting enabled",
				slog.Int("requests", cfg.Ingestion.RateLimitRequests),
				slog.Duration("window", cfg.Ingestion.RateLimitWindow),
			)
		}
	} else {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	defer limiter.Close()

	// Pipelines, sinks, DLQ
	collector, err := service.New(cfg, logger.Logger)
	if err != nil {
		log.Fatalf("Failed to build collector: %v", err)
	}
	collector.Start()

	// Sink endpoints are soft dependencies: the collector keeps accepting
	// while a sink is down and relies on queues, retries, and the DLQ.
	orch := health.NewOrchestrator(logger.Logger)
	if ep := cfg.Sinks.Logs.Endpoint; ep != "" {
		mustRegister(orch, health.Check{
			Name:     "loki",
			Prober:   health.NewHTTPProber(ep+"/ready", 5*time.Second),
			Interval: 10 * time.Second,
		})
	}
	if ep := cfg.Sinks.Metrics.Endpoint; ep != "" {
		mustRegister(orch, health.Check{
			Name:     "otlp-metrics",
			Prober:   health.NewHTTPProber(ep, 5*time.Second),
			Interval: 10 * time.Second,
		})
	}

	orchCtx, orchCancel := context.WithCancel(context.Background())
	defer orchCancel()
	orch.Start(orchCtx)

	// gRPC ingestion
	grpcAddr := fmt.Sprintf(":%d", cfg.Server.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", grpcAddr, err)
	}
	grpcServer := grpc.NewServer()
	receiver.NewGRPCServices(collector, logger.Logger).Register(grpcServer)
	go func() {
		slog.Info("gRPC ingestion listening", slog.String("addr", grpcAddr))
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("gRPC server error: %v", err)
		}
	}()

	// HTTP ingestion + operational endpoints
	httpHandler := receiver.NewHTTPHandler(collector, logger.Logger, cfg.Ingestion.MaxBodyBytes)
	router := server.NewRouter(httpHandler, collector, orch, limiter, cfg.CORS.AllowedOrigins, logger.Logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		slog.Info("HTTP ingestion listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown: stop intake first, then drain pipelines and sinks.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down collector...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	grpcServer.GracefulStop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced to shutdown", logging.Err(err))
	}
	orch.Stop()

	if err := collector.Shutdown(shutdownCtx); err != nil {
		slog.Error("Collector drain incomplete", logging.Err(err))
		os.Exit(1)
	}
	slog.Info("Collector stopped")
}

func mustRegister(orch *health.Orchestrator, check health.Check) {
	if err := orch.Register(check); err != nil {
		log.Fatalf("Failed to register health check %s: %v", check.Name, err)
	}
}
