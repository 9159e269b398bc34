package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ankitchouhan119/SkyObserv/internal/aggregate"
	"github.com/ankitchouhan119/SkyObserv/internal/api"
	"github.com/ankitchouhan119/SkyObserv/internal/cache"
	"github.com/ankitchouhan119/SkyObserv/internal/config"
	"github.com/ankitchouhan119/SkyObserv/internal/entity"
	"github.com/ankitchouhan119/SkyObserv/internal/insight"
	"github.com/ankitchouhan119/SkyObserv/internal/metrics"
	"github.com/ankitchouhan119/SkyObserv/internal/repo"
	"github.com/ankitchouhan119/SkyObserv/internal/service"
	"github.com/ankitchouhan119/SkyObserv/internal/syncbus"
	"github.com/ankitchouhan119/SkyObserv/internal/utils"
	"github.com/ankitchouhan119/SkyObserv/internal/window"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger("skyobserv", cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting skyobserv", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable", slog.Any("error", err))
		} else {
			cacheProvider = provider
			defer provider.Close()
		}
	}

	oapClient := repo.NewSkyWalkingClient(
		cfg.Clients.SkyWalking.BaseURL,
		cfg.Clients.SkyWalking.GraphQLPath,
		cfg.Clients.SkyWalking.Timeout,
		cacheProvider,
		cfg.Cache.InventoryTTL,
		cfg.Cache.TopologyTTL,
	)

	windows := window.NewStore(logger, window.WithSkew(cfg.Window.Skew))
	bus := syncbus.NewBus(logger)

	dashboard := service.NewDashboard(
		logger,
		oapClient,
		aggregate.NewAggregator(oapClient, logger, aggregate.DefaultConcurrency),
		insight.NewScanner(oapClient, logger, cfg.Insight.PageSize, cfg.Insight.Concurrency),
		windows,
		bus,
		entity.Resolver{
			ClusterPrefix: cfg.Resolver.ClusterPrefix,
			Qualify:       cfg.Resolver.Qualify,
		},
	)
	defer dashboard.Close()

	handler := api.NewHandler(dashboard, bus, logger)
	defer handler.Close()

	server, err := api.NewServer(cfg.Server, handler.Router())
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("HTTP server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("skyobserv stopped")
}
