package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// HTTPConfig holds the API listener and ingress rate limiting settings.
type HTTPConfig struct {
	Addr              string
	RateLimitInterval *time.Duration
	RateLimitBurst    *int
}

// RedisConfig holds Redis connection and behavior settings for the
// distributed lock.
type RedisConfig struct {
	URL                string
	DialTimeout        *time.Duration
	ReadTimeout        *time.Duration
	WriteTimeout       *time.Duration
	PoolSize           *int
	MinIdleConns       *int
	MaxRetries         *int
	HealthcheckTimeout time.Duration
	LockTTL            *time.Duration
	EnableOTel         bool
	TLSConfig          *tls.Config
}

// LedgerConfig holds idempotency ledger windows. Nil fields fall back to the
// ledger's defaults.
type LedgerConfig struct {
	ProcessingTimeout *time.Duration
	ResultRetention   *time.Duration
}

// GatewayConfig holds the simulated payment gateway's behavior.
type GatewayConfig struct {
	Latency     *time.Duration
	FailureRate *float64
}

// ObservabilityConfig holds the address of the standalone metrics listener.
// An empty Addr disables it; metrics stay reachable on the API router.
type ObservabilityConfig struct {
	Addr string
}

// LoadHTTP reads API listener config from env.
func LoadHTTP() (HTTPConfig, error) {
	cfg := HTTPConfig{}

	addr, err := requiredString("HTTP_ADDR")
	if err != nil {
		return cfg, err
	}
	cfg.Addr = addr

	if cfg.RateLimitInterval, err = optionalDuration("HTTP_RATE_LIMIT_INTERVAL"); err != nil {
		return cfg, err
	}
	if cfg.RateLimitBurst, err = optionalInt("HTTP_RATE_LIMIT_BURST"); err != nil {
		return cfg, err
	}
	if (cfg.RateLimitInterval == nil) != (cfg.RateLimitBurst == nil) {
		return cfg, errors.New("HTTP_RATE_LIMIT_INTERVAL and HTTP_RATE_LIMIT_BURST must be set together")
	}

	return cfg, nil
}

// LoadRedis reads Redis config from env.
func LoadRedis() (RedisConfig, error) {
	cfg := RedisConfig{}

	url, err := requiredString("REDIS_URL")
	if err != nil {
		return cfg, err
	}
	cfg.URL = url

	if cfg.DialTimeout, err = optionalDuration("REDIS_DIAL_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.ReadTimeout, err = optionalDuration("REDIS_READ_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.WriteTimeout, err = optionalDuration("REDIS_WRITE_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.PoolSize, err = optionalInt("REDIS_POOL_SIZE"); err != nil {
		return cfg, err
	}
	if cfg.MinIdleConns, err = optionalInt("REDIS_MIN_IDLE_CONNS"); err != nil {
		return cfg, err
	}
	if cfg.MaxRetries, err = optionalInt("REDIS_MAX_RETRIES"); err != nil {
		return cfg, err
	}

	if cfg.HealthcheckTimeout, err = requiredDuration("REDIS_HEALTHCHECK_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.LockTTL, err = optionalDuration("REDIS_LOCK_TTL"); err != nil {
		return cfg, err
	}

	if cfg.EnableOTel, err = optionalBool("REDIS_OTEL"); err != nil {
		return cfg, err
	}

	if cfg.TLSConfig, err = loadRedisTLSFromEnv(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// LoadLedger reads idempotency ledger windows from env.
func LoadLedger() (LedgerConfig, error) {
	cfg := LedgerConfig{}

	var err error
	if cfg.ProcessingTimeout, err = optionalDuration("LEDGER_PROCESSING_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.ResultRetention, err = optionalDuration("LEDGER_RESULT_RETENTION"); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadGateway reads the simulated gateway's behavior from env.
func LoadGateway() (GatewayConfig, error) {
	cfg := GatewayConfig{}

	var err error
	if cfg.Latency, err = optionalDuration("GATEWAY_LATENCY"); err != nil {
		return cfg, err
	}
	if cfg.FailureRate, err = optionalFloat("GATEWAY_FAILURE_RATE"); err != nil {
		return cfg, err
	}
	if cfg.FailureRate != nil && *cfg.FailureRate > 1 {
		return cfg, errors.New("GATEWAY_FAILURE_RATE must be <= 1")
	}
	return cfg, nil
}

// LoadObservability reads the metrics listener address from env.
func LoadObservability() ObservabilityConfig {
	return ObservabilityConfig{Addr: strings.TrimSpace(os.Getenv("OBS_ADDR"))}
}

func loadRedisTLSFromEnv() (*tls.Config, error) {
	caFile := strings.TrimSpace(os.Getenv("REDIS_TLS_CA_FILE"))
	certFile := strings.TrimSpace(os.Getenv("REDIS_TLS_CERT_FILE"))
	keyFile := strings.TrimSpace(os.Getenv("REDIS_TLS_KEY_FILE"))
	serverName := strings.TrimSpace(os.Getenv("REDIS_TLS_SERVER_NAME"))
	insecureStr := strings.TrimSpace(os.Getenv("REDIS_TLS_INSECURE_SKIP_VERIFY"))

	if caFile == "" && certFile == "" && keyFile == "" && serverName == "" && insecureStr == "" {
		return nil, nil
	}
	if (certFile == "") != (keyFile == "") {
		return nil, errors.New("REDIS_TLS_CERT_FILE and REDIS_TLS_KEY_FILE must be set together")
	}

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: serverName,
	}

	if insecureStr != "" {
		insecure, err := strconv.ParseBool(insecureStr)
		if err != nil {
			return nil, fmt.Errorf("REDIS_TLS_INSECURE_SKIP_VERIFY: %w", err)
		}
		tlsConfig.InsecureSkipVerify = insecure
	}

	if caFile != "" {
		pemData, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("read REDIS_TLS_CA_FILE: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, errors.New("REDIS_TLS_CA_FILE contains no valid certificates")
		}
		tlsConfig.RootCAs = pool
	}

	if certFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("load redis TLS keypair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func optionalDuration(name string) (*time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func optionalInt(name string) (*int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func optionalFloat(name string) (*float64, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func optionalBool(name string) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, nil
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	return val, nil
}

func requiredString(name string) (string, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return raw, nil
}

func requiredDuration(name string) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("%s must be >= 0", name)
	}
	return val, nil
}
