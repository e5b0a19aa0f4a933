package payments

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"orderflow/internal/reliability"
)

// Gateway executes charges against an external payment provider.
type Gateway interface {
	Charge(ctx context.Context, orderID string, amount int64) error
}

// ErrGatewayDeclined signals the provider rejected the charge.
var ErrGatewayDeclined = errors.New("gateway declined charge")

// SimulatedGatewayConfig configures the gateway simulation.
type SimulatedGatewayConfig struct {
	Latency     time.Duration
	FailureRate float64
	Sleep       func(context.Context, time.Duration) error
	Roll        func() float64
}

// SimulatedGateway stands in for an external provider: every charge takes a
// fixed multi-second latency and fails at a configurable rate.
type SimulatedGateway struct {
	latency     time.Duration
	failureRate float64
	sleep       func(context.Context, time.Duration) error
	roll        func() float64
}

// NewSimulatedGateway constructs a SimulatedGateway. A zero Latency selects
// the 2s default and a negative one disables the delay. A negative
// FailureRate selects the default 10% rate; zero means never decline.
func NewSimulatedGateway(cfg SimulatedGatewayConfig) *SimulatedGateway {
	latency := cfg.Latency
	if latency < 0 {
		latency = 0
	} else if latency == 0 {
		latency = 2 * time.Second
	}
	failureRate := cfg.FailureRate
	if failureRate < 0 {
		failureRate = 0.1
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = reliability.Sleep
	}
	roll := cfg.Roll
	if roll == nil {
		roll = rand.Float64
	}
	return &SimulatedGateway{
		latency:     latency,
		failureRate: failureRate,
		sleep:       sleep,
		roll:        roll,
	}
}

func (g *SimulatedGateway) Charge(ctx context.Context, orderID string, amount int64) error {
	if err := g.sleep(ctx, g.latency); err != nil {
		return err
	}
	if g.roll() < g.failureRate {
		return ErrGatewayDeclined
	}
	return nil
}

// ReliableGateway wraps a Gateway with a rate limiter and circuit breaker.
// Charges are never retried here: a charge is not idempotent at the provider,
// so retrying is the caller's decision under a fresh idempotency claim.
type ReliableGateway struct {
	base    Gateway
	limiter *reliability.RateLimiter
	breaker *reliability.CircuitBreaker
}

// NewReliableGateway constructs a reliability-wrapped gateway.
func NewReliableGateway(base Gateway, limiter *reliability.RateLimiter, breaker *reliability.CircuitBreaker) *ReliableGateway {
	return &ReliableGateway{base: base, limiter: limiter, breaker: breaker}
}

func (g *ReliableGateway) Charge(ctx context.Context, orderID string, amount int64) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if g.breaker != nil {
		return g.breaker.Execute(func() error {
			return g.base.Charge(ctx, orderID, amount)
		})
	}
	return g.base.Charge(ctx, orderID, amount)
}
