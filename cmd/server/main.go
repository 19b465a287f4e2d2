package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/fanout/internal/adapter/httpserver"
	"github.com/pscheid92/fanout/internal/adapter/memory"
	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/adapter/redis"
	"github.com/pscheid92/fanout/internal/adapter/websocket"
	"github.com/pscheid92/fanout/internal/app"
	"github.com/pscheid92/fanout/internal/domain"
	"github.com/pscheid92/fanout/internal/platform/config"
	"github.com/pscheid92/fanout/internal/platform/logging"
)

const (
	brokerConnectTimeout = 30 * time.Second
	httpShutdownTimeout  = 2 * time.Second
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	return cfg
}

func setupBroker(cfg *config.Config, reg prometheus.Registerer) (domain.Broker, func()) {
	if cfg.Broker == config.BrokerMemory {
		slog.Warn("Using in-memory broker, connections are not shared with other instances")
		return memory.NewBroker(), func() {}
	}

	brokerMetrics := metrics.NewBrokerMetrics(reg)

	ctx, cancel := context.WithTimeout(context.Background(), brokerConnectTimeout)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL,
		redis.NewMetricsHook(brokerMetrics),
		redis.NewCircuitBreakerHook(brokerMetrics),
	)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	broker := redis.NewBroker(client, cfg.MembershipKey, cfg.BroadcastChannel)
	return broker, func() { _ = client.Close() }
}

func healthChecks(broker domain.Broker, relay *app.Relay) []httpserver.HealthCheck {
	return []httpserver.HealthCheck{
		{Name: "broker", Check: broker.Ping},
		{Name: "relay", Check: func(context.Context) error {
			if state := relay.State(); state != app.RelaySubscribed {
				return errors.New("relay is " + state.String())
			}
			return nil
		}},
	}
}

// runSignalHandler hands SIGINT and SIGTERM to the coordinator. Repeated signals are
// harmless because only the first Shutdown does anything.
func runSignalHandler(coordinator *app.Coordinator) {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for sig := range sigChan {
			reason := "SIGTERM"
			if sig == os.Interrupt {
				reason = "SIGINT"
			}
			slog.Info("Shutdown signal received", "signal", reason)
			go coordinator.Shutdown(reason)
		}
	}()
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat, cfg.InstanceID)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "broker", cfg.Broker)

	reg := metrics.NewRegistry()
	relayMetrics := metrics.NewRelayMetrics(reg)
	httpMetrics := metrics.NewHTTPMetrics(reg)

	broker, closeBroker := setupBroker(cfg, reg)

	registry := app.NewRegistry(broker, cfg.SendTimeout, relayMetrics)
	relay := app.NewRelay(broker, registry, relayMetrics)
	notifier := app.NewNotifier(registry, clock, cfg.NotificationInterval, cfg.NotificationText)
	sessions := app.NewSessions(registry)

	background := context.Background()
	relayTask := app.Go(background, "relay", relay.Run)
	notifierTask := app.Go(background, "notifier", notifier.Run)

	limiter := websocket.NewConnectionLimiter(int64(cfg.MaxWebSocketConnections))
	checkOrigin := websocket.NewCheckOrigin(cfg.AppURL, cfg.IsDevelopment())
	wsHandler := websocket.NewHandler(sessions, limiter, checkOrigin, relayMetrics, clock)

	srv, err := httpserver.NewServer(cfg, wsHandler, metrics.Handler(reg), httpMetrics, registry.Lifecycle(), healthChecks(broker, relay))
	if err != nil {
		slog.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	coordinator := app.NewCoordinator(registry, app.CoordinatorConfig{
		DrainTimeout: cfg.DrainTimeout,
		PollInterval: cfg.DrainPollInterval,
		Clock:        clock,
		Exit: func(code int) {
			closeBroker()

			ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				slog.Error("Server shutdown error", "error", err)
			}
			os.Exit(code)
		},
	}, relayMetrics)
	coordinator.AddNonEssential(notifierTask)
	coordinator.AddDrainTask(relayTask)

	runSignalHandler(coordinator)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-coordinator.Done()
}
