package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orderflow/cmd/server/config"
	httpapi "orderflow/internal/adapters/http"
	"orderflow/internal/idempotency"
	"orderflow/internal/observability"
	"orderflow/internal/orders"
	"orderflow/internal/payments"
	"orderflow/internal/realtime"
	"orderflow/internal/reliability"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func run(ctx context.Context) error {
	httpCfg, err := config.LoadHTTP()
	if err != nil {
		return err
	}
	ledgerCfg, err := config.LoadLedger()
	if err != nil {
		return err
	}
	gatewayCfg, err := config.LoadGateway()
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	ledger := idempotency.New(ledgerConfig(ledgerCfg))

	orderStore, paymentStore, cleanupStores, err := buildStores(ctx, log.Printf)
	if err != nil {
		return err
	}
	defer cleanupStores()

	locker, cleanupLocker, err := buildLocker(ctx, log.Printf)
	if err != nil {
		return err
	}
	defer cleanupLocker()

	members, products := buildClients(log.Printf)

	hub := realtime.NewHub()
	go hub.Run(ctx)

	executor := payments.NewExecutor(payments.ExecutorConfig{
		Store:   paymentStore,
		Orders:  orderStore,
		Ledger:  ledger,
		Gateway: buildGateway(gatewayCfg),
		Metrics: metrics,
	})

	orderService := orders.NewService(orders.ServiceConfig{
		Store:    orderStore,
		Members:  members,
		Products: products,
		Payments: payments.NewProcessor(executor),
		Ledger:   ledger,
		Locks:    locker,
		Events:   realtime.NewBroadcaster(hub, log.Printf),
		Metrics:  metrics,
	})

	server := httpapi.NewServer(httpapi.ServerConfig{
		Orders:  orderService,
		Hub:     hub,
		Metrics: metrics,
		Limiter: buildLimiter(httpCfg),
	})

	obsSrv := startObservabilityServer(metrics)

	srv := &http.Server{
		Addr:    httpCfg.Addr,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("API listening on %s", httpCfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		metrics.MarkShutdown(metrics.Snapshot().InFlight)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
		if obsSrv != nil {
			_ = obsSrv.Shutdown(shutdownCtx)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func ledgerConfig(cfg config.LedgerConfig) idempotency.Config {
	out := idempotency.Config{}
	if cfg.ProcessingTimeout != nil {
		out.ProcessingTimeout = *cfg.ProcessingTimeout
	}
	if cfg.ResultRetention != nil {
		out.ResultRetention = *cfg.ResultRetention
	}
	return out
}

func buildLimiter(cfg config.HTTPConfig) *reliability.RateLimiter {
	if cfg.RateLimitInterval == nil || cfg.RateLimitBurst == nil {
		return nil
	}
	return reliability.NewRateLimiter(*cfg.RateLimitInterval, *cfg.RateLimitBurst)
}

func buildGateway(cfg config.GatewayConfig) payments.Gateway {
	gwCfg := payments.SimulatedGatewayConfig{}
	if cfg.Latency != nil {
		if *cfg.Latency == 0 {
			gwCfg.Latency = -1
		} else {
			gwCfg.Latency = *cfg.Latency
		}
	}
	if cfg.FailureRate != nil {
		gwCfg.FailureRate = *cfg.FailureRate
	} else {
		gwCfg.FailureRate = -1
	}

	limiter := reliability.NewRateLimiter(50*time.Millisecond, 20)
	breaker := reliability.NewCircuitBreaker(reliability.CircuitBreakerConfig{
		MaxFailures:  5,
		ResetTimeout: 10 * time.Second,
	})
	return payments.NewReliableGateway(payments.NewSimulatedGateway(gwCfg), limiter, breaker)
}

func startObservabilityServer(metrics *observability.Metrics) *http.Server {
	cfg := config.LoadObservability()
	if cfg.Addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(metrics))

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("observability server error: %v", err)
		}
	}()
	return srv
}
