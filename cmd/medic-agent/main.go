// Command medic-agent runs the autonomous resurrection decision agent as a
// standalone process: it reads kill reports off the configured stream,
// assesses and decides on each one, and drives the approval queue, executor,
// and post-resurrection monitor until terminated.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/kase1111-hash/medic-agent/internal/agent"
	"github.com/kase1111-hash/medic-agent/internal/agentlog"
	"github.com/kase1111-hash/medic-agent/internal/config"
	"github.com/kase1111-hash/medic-agent/internal/coordination"
	"github.com/kase1111-hash/medic-agent/internal/coordination/redisstore"
	"github.com/kase1111-hash/medic-agent/internal/executor"
	"github.com/kase1111-hash/medic-agent/internal/intel"
	"github.com/kase1111-hash/medic-agent/internal/queueapi"
	"github.com/kase1111-hash/medic-agent/internal/selfmonitor"
	"github.com/kase1111-hash/medic-agent/internal/stream"
	"github.com/kase1111-hash/medic-agent/internal/telemetry"
)

func main() {
	cfg, err := config.New(config.WithAgentID(os.Getenv("MEDIC_AGENT_ID")))
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	if cfg.AgentID == "" {
		log.Fatal("MEDIC_AGENT_ID must be set")
	}

	logger := agentlog.NewLogger(agentlog.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader, err := buildReader(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("stream backend: %v", err)
	}
	defer reader.Close()

	intelBackend := buildIntelBackend(cfg)

	restarter := buildRestarter(cfg)

	telemetryProvider, err := buildTelemetry(ctx, cfg)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := telemetryProvider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error shutting down telemetry provider", agentlog.Fields{"error": err.Error()})
		}
	}()

	clusterStore, closeStore, err := buildClusterStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("cluster store: %v", err)
	}
	if closeStore != nil {
		defer closeStore()
	}

	deps := agent.Deps{
		Reader:       reader,
		IntelBackend: intelBackend,
		Restarter:    restarter,
		Resources:    selfmonitor.NewOSResourceSampler(),
		Connections:  selfmonitor.NewLiveConnectionChecker(reader, intelBackend),
		ClusterStore: clusterStore,
		Telemetry:    telemetryProvider,
	}

	a := agent.New(cfg, deps, logger)

	var adminServer *http.Server
	if cfg.Admin.ListenAddr != "" {
		api := queueapi.New(a.Queue(), a.Admission(), a.EdgeCase(), logger, cfg.Admin.OperatorID)
		adminServer = &http.Server{Addr: cfg.Admin.ListenAddr, Handler: api.Handler()}
		go func() {
			logger.Info("queue admin API listening", agentlog.Fields{"addr": cfg.Admin.ListenAddr})
			if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("queue admin API stopped", agentlog.Fields{"error": err.Error()})
			}
		}()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		logger.Info("signal received, shutting down", nil)
		cancel()
		<-sigCh
		logger.Warn("second signal received, forcing exit", nil)
		os.Exit(1)
	}()

	runErr := a.Start(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Monitor.HealthCheckInterval)
	defer stopCancel()
	if err := a.Stop(stopCtx); err != nil {
		logger.Warn("error during shutdown", agentlog.Fields{"error": err.Error()})
	}
	if adminServer != nil {
		if err := adminServer.Shutdown(stopCtx); err != nil {
			logger.Warn("error shutting down queue admin API", agentlog.Fields{"error": err.Error()})
		}
	}

	if runErr != nil && runErr != context.Canceled {
		log.Fatalf("agent stopped: %v", runErr)
	}
}

func buildReader(ctx context.Context, cfg *config.Config, logger agentlog.Logger) (stream.Reader, error) {
	switch cfg.Stream.Backend {
	case "redis":
		return stream.NewRedisStream(ctx, stream.RedisStreamOptions{
			RedisURL: cfg.Stream.RedisURL,
			Stream:   cfg.Stream.StreamKey,
			Group:    cfg.Stream.ConsumerGroup,
			Consumer: cfg.Stream.ConsumerName,
			Logger:   logger,
		})
	default:
		return stream.NewInProcess(), nil
	}
}

func buildIntelBackend(cfg *config.Config) intel.Backend {
	switch cfg.Intel.Backend {
	case "http":
		return intel.NewHTTPBackend(cfg.Intel.BaseURL, cfg.Intel.AuthToken, cfg.Intel.RequestTimeout)
	default:
		return intel.NewInProcess()
	}
}

func buildRestarter(cfg *config.Config) executor.Restarter {
	switch cfg.Restarter.Backend {
	case "http":
		return executor.NewHTTPRestarter(cfg.Restarter.BaseURL, cfg.Restarter.Timeout)
	default:
		return executor.NewInProcessRestarter()
	}
}

func buildTelemetry(ctx context.Context, cfg *config.Config) (*telemetry.Provider, error) {
	if !cfg.Telemetry.Enabled {
		return telemetry.Noop(), nil
	}
	return telemetry.New(ctx, telemetry.Options{
		ServiceName: cfg.Telemetry.ServiceName,
		AgentID:     cfg.AgentID,
		Exporter:    cfg.Telemetry.Exporter,
	})
}

func buildClusterStore(ctx context.Context, cfg *config.Config, logger agentlog.Logger) (coordination.Store, func(), error) {
	switch cfg.Cluster.Store {
	case "redis":
		store, err := redisstore.New(ctx, redisstore.Options{
			RedisURL:  cfg.Cluster.RedisURL,
			MaxEvents: int64(cfg.Cluster.MaxEvents),
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case "none":
		return nil, nil, nil
	default:
		return coordination.NewInProcessStore(cfg.Cluster.MaxEvents), nil, nil
	}
}
