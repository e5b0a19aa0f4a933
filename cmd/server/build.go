package main

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"time"

	"orderflow/cmd/server/config"
	ordersdb "orderflow/internal/db/orders"
	"orderflow/internal/lock"
	"orderflow/internal/orders"
	"orderflow/internal/payments"
	"orderflow/internal/reliability"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

var openDB = func(driver, dsn string) (*sql.DB, error) {
	return sql.Open(driver, dsn)
}

// buildStores returns Postgres-backed stores when DATABASE_URL is set and
// usable, falling back to in-memory stores otherwise.
func buildStores(ctx context.Context, logf func(format string, args ...any)) (orders.Store, payments.Store, func(), error) {
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		logf("DATABASE_URL not set, using in-memory stores")
		return orders.NewInMemoryStore(), payments.NewInMemoryStore(), func() {}, nil
	}

	db, err := openDB("pgx", databaseURL)
	if err != nil {
		logf("postgres unavailable, using in-memory stores: %v", err)
		return orders.NewInMemoryStore(), payments.NewInMemoryStore(), func() {}, nil
	}

	orderStore, err := ordersdb.NewOrderStoreWithSchema(ctx, db)
	if err == nil {
		var paymentStore *ordersdb.PaymentStore
		if paymentStore, err = ordersdb.NewPaymentStoreWithSchema(ctx, db); err == nil {
			cleanup := func() {
				if err := db.Close(); err != nil {
					logf("close db: %v", err)
				}
			}
			return orderStore, paymentStore, cleanup, nil
		}
	}

	_ = db.Close()
	logf("postgres schema init failed, using in-memory stores: %v", err)
	return orders.NewInMemoryStore(), payments.NewInMemoryStore(), func() {}, nil
}

// buildLocker returns a Redis-backed locker when REDIS_URL is set and an
// in-process one otherwise.
func buildLocker(ctx context.Context, logf func(format string, args ...any)) (orders.Locker, func(), error) {
	if strings.TrimSpace(os.Getenv("REDIS_URL")) == "" {
		logf("REDIS_URL not set, using in-process locking")
		return lock.NewLocalLocker(), func() {}, nil
	}

	cfg, err := config.LoadRedis()
	if err != nil {
		return nil, nil, err
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DialTimeout != nil {
		opts.DialTimeout = *cfg.DialTimeout
	}
	if cfg.ReadTimeout != nil {
		opts.ReadTimeout = *cfg.ReadTimeout
	}
	if cfg.WriteTimeout != nil {
		opts.WriteTimeout = *cfg.WriteTimeout
	}
	if cfg.PoolSize != nil {
		opts.PoolSize = *cfg.PoolSize
	}
	if cfg.MinIdleConns != nil {
		opts.MinIdleConns = *cfg.MinIdleConns
	}
	if cfg.MaxRetries != nil {
		opts.MaxRetries = *cfg.MaxRetries
	}
	if cfg.TLSConfig != nil {
		opts.TLSConfig = cfg.TLSConfig
	}

	client := redis.NewClient(opts)
	if cfg.EnableOTel {
		if err := redisotel.InstrumentTracing(client); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		if err := redisotel.InstrumentMetrics(client); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
	}

	pingCtx := ctx
	if pingCtx == nil {
		pingCtx = context.Background()
	}
	if cfg.HealthcheckTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(pingCtx, cfg.HealthcheckTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	lockerCfg := lock.RedisLockerConfig{
		Client: client,
		Retry: reliability.RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   20 * time.Millisecond,
			MaxDelay:    200 * time.Millisecond,
		},
		Logf: logf,
	}
	if cfg.LockTTL != nil {
		lockerCfg.TTL = *cfg.LockTTL
	}

	cleanup := func() {
		if err := client.Close(); err != nil {
			logf("close redis: %v", err)
		}
	}
	return lock.NewRedisLocker(lockerCfg), cleanup, nil
}

// buildClients wires the member and product collaborators. Both are in-memory
// simulations of external services; outside production they come pre-seeded
// so the API is usable immediately.
func buildClients(logf func(format string, args ...any)) (orders.MemberClient, orders.ProductClient) {
	members := orders.NewInMemoryMemberClient()
	products := orders.NewInMemoryProductClient()

	if env := os.Getenv("APP_ENV"); env != "production" {
		seedDemoData(members, products)
		logf("demo members and products seeded (APP_ENV=%q)", env)
	}
	return members, products
}

func seedDemoData(members *orders.InMemoryMemberClient, products *orders.InMemoryProductClient) {
	members.AddMember(orders.Member{ID: "member-1", Name: "Ada"})
	members.AddMember(orders.Member{ID: "member-2", Name: "Grace"})

	products.AddProduct(orders.Product{ID: "product-1", Name: "Keyboard", Price: 4500}, 100)
	products.AddProduct(orders.Product{ID: "product-2", Name: "Mouse", Price: 2500}, 100)
	products.AddProduct(orders.Product{ID: "product-3", Name: "Monitor", Price: 18900}, 25)
}
