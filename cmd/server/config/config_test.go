package config

import (
	"testing"
	"time"
)

func TestLoadHTTP(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("HTTP_RATE_LIMIT_INTERVAL", "5ms")
	t.Setenv("HTTP_RATE_LIMIT_BURST", "10")

	cfg, err := LoadHTTP()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Addr)
	}
	if cfg.RateLimitInterval == nil || *cfg.RateLimitInterval != 5*time.Millisecond {
		t.Fatalf("unexpected rate limit interval: %v", cfg.RateLimitInterval)
	}
	if cfg.RateLimitBurst == nil || *cfg.RateLimitBurst != 10 {
		t.Fatalf("unexpected rate limit burst: %v", cfg.RateLimitBurst)
	}
}

func TestLoadHTTP_MissingAddr(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	if _, err := LoadHTTP(); err == nil {
		t.Fatalf("expected error for missing addr")
	}
}

func TestLoadHTTP_RateLimitRequiresBothSettings(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("HTTP_RATE_LIMIT_INTERVAL", "5ms")
	t.Setenv("HTTP_RATE_LIMIT_BURST", "")
	if _, err := LoadHTTP(); err == nil {
		t.Fatalf("expected error for interval without burst")
	}
}

func TestLoadRedis(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("REDIS_HEALTHCHECK_TIMEOUT", "2s")
	t.Setenv("REDIS_LOCK_TTL", "45s")

	cfg, err := LoadRedis()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.URL != "redis://localhost:6379/0" {
		t.Fatalf("unexpected redis url: %s", cfg.URL)
	}
	if cfg.HealthcheckTimeout != 2*time.Second {
		t.Fatalf("unexpected healthcheck timeout: %v", cfg.HealthcheckTimeout)
	}
	if cfg.LockTTL == nil || *cfg.LockTTL != 45*time.Second {
		t.Fatalf("unexpected lock ttl: %v", cfg.LockTTL)
	}
}

func TestLoadRedis_WithOptionalFields(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("REDIS_HEALTHCHECK_TIMEOUT", "1s")
	t.Setenv("REDIS_DIAL_TIMEOUT", "3s")
	t.Setenv("REDIS_READ_TIMEOUT", "4s")
	t.Setenv("REDIS_WRITE_TIMEOUT", "5s")
	t.Setenv("REDIS_POOL_SIZE", "9")
	t.Setenv("REDIS_MIN_IDLE_CONNS", "2")
	t.Setenv("REDIS_MAX_RETRIES", "3")
	t.Setenv("REDIS_OTEL", "true")

	cfg, err := LoadRedis()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DialTimeout == nil || *cfg.DialTimeout != 3*time.Second {
		t.Fatalf("unexpected dial timeout: %v", cfg.DialTimeout)
	}
	if cfg.ReadTimeout == nil || *cfg.ReadTimeout != 4*time.Second {
		t.Fatalf("unexpected read timeout: %v", cfg.ReadTimeout)
	}
	if cfg.WriteTimeout == nil || *cfg.WriteTimeout != 5*time.Second {
		t.Fatalf("unexpected write timeout: %v", cfg.WriteTimeout)
	}
	if cfg.PoolSize == nil || *cfg.PoolSize != 9 {
		t.Fatalf("unexpected pool size: %v", cfg.PoolSize)
	}
	if cfg.MinIdleConns == nil || *cfg.MinIdleConns != 2 {
		t.Fatalf("unexpected min idle: %v", cfg.MinIdleConns)
	}
	if cfg.MaxRetries == nil || *cfg.MaxRetries != 3 {
		t.Fatalf("unexpected max retries: %v", cfg.MaxRetries)
	}
	if !cfg.EnableOTel {
		t.Fatalf("expected otel enabled")
	}
	if cfg.LockTTL != nil {
		t.Fatalf("expected nil lock ttl, got %v", cfg.LockTTL)
	}
}

func TestLoadRedis_MissingURL(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	if _, err := LoadRedis(); err == nil {
		t.Fatalf("expected missing url error")
	}
}

func TestLoadRedis_InvalidHealthcheck(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("REDIS_HEALTHCHECK_TIMEOUT", "bad")
	if _, err := LoadRedis(); err == nil {
		t.Fatalf("expected error for bad healthcheck timeout")
	}
}

func TestLoadLedger(t *testing.T) {
	t.Setenv("LEDGER_PROCESSING_TIMEOUT", "3m")
	t.Setenv("LEDGER_RESULT_RETENTION", "48h")

	cfg, err := LoadLedger()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ProcessingTimeout == nil || *cfg.ProcessingTimeout != 3*time.Minute {
		t.Fatalf("unexpected processing timeout: %v", cfg.ProcessingTimeout)
	}
	if cfg.ResultRetention == nil || *cfg.ResultRetention != 48*time.Hour {
		t.Fatalf("unexpected result retention: %v", cfg.ResultRetention)
	}
}

func TestLoadLedger_Empty(t *testing.T) {
	t.Setenv("LEDGER_PROCESSING_TIMEOUT", "")
	t.Setenv("LEDGER_RESULT_RETENTION", "")

	cfg, err := LoadLedger()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ProcessingTimeout != nil || cfg.ResultRetention != nil {
		t.Fatalf("expected nil windows, got %+v", cfg)
	}
}

func TestLoadGateway(t *testing.T) {
	t.Setenv("GATEWAY_LATENCY", "100ms")
	t.Setenv("GATEWAY_FAILURE_RATE", "0.25")

	cfg, err := LoadGateway()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Latency == nil || *cfg.Latency != 100*time.Millisecond {
		t.Fatalf("unexpected latency: %v", cfg.Latency)
	}
	if cfg.FailureRate == nil || *cfg.FailureRate != 0.25 {
		t.Fatalf("unexpected failure rate: %v", cfg.FailureRate)
	}
}

func TestLoadGateway_FailureRateBounds(t *testing.T) {
	t.Setenv("GATEWAY_FAILURE_RATE", "1.5")
	if _, err := LoadGateway(); err == nil {
		t.Fatalf("expected error for failure rate above 1")
	}

	t.Setenv("GATEWAY_FAILURE_RATE", "-0.1")
	if _, err := LoadGateway(); err == nil {
		t.Fatalf("expected error for negative failure rate")
	}
}

func TestLoadObservability(t *testing.T) {
	t.Setenv("OBS_ADDR", ":9999")
	if cfg := LoadObservability(); cfg.Addr != ":9999" {
		t.Fatalf("unexpected observability addr: %+v", cfg)
	}

	t.Setenv("OBS_ADDR", "")
	if cfg := LoadObservability(); cfg.Addr != "" {
		t.Fatalf("expected empty addr, got %+v", cfg)
	}
}

func TestLoadRedisTLS_NoSettingsReturnsNil(t *testing.T) {
	if cfg, err := loadRedisTLSFromEnv(); err != nil || cfg != nil {
		t.Fatalf("expected nil tls config, got %#v err %v", cfg, err)
	}
}

func TestLoadRedisTLS_MismatchedKeyPair(t *testing.T) {
	t.Setenv("REDIS_TLS_CERT_FILE", "cert")
	if _, err := loadRedisTLSFromEnv(); err == nil {
		t.Fatalf("expected cert/key mismatch error")
	}
}

func TestLoadRedisTLS_InvalidInsecureFlag(t *testing.T) {
	t.Setenv("REDIS_TLS_INSECURE_SKIP_VERIFY", "notabool")
	if _, err := loadRedisTLSFromEnv(); err == nil {
		t.Fatalf("expected parse bool error")
	}
}

func TestLoadRedisTLS_InsecureTrue(t *testing.T) {
	t.Setenv("REDIS_TLS_INSECURE_SKIP_VERIFY", "true")
	cfg, err := loadRedisTLSFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil || !cfg.InsecureSkipVerify {
		t.Fatalf("expected insecure tls config, got %#v", cfg)
	}
}

func TestLoadRedisTLS_ReadCAError(t *testing.T) {
	t.Setenv("REDIS_TLS_CA_FILE", "/no/such/file")
	if _, err := loadRedisTLSFromEnv(); err == nil {
		t.Fatalf("expected read error for missing CA file")
	}
}

func TestOptionalAndRequiredHelpers(t *testing.T) {
	t.Setenv("X_OPT_DUR", "-1ms")
	if _, err := optionalDuration("X_OPT_DUR"); err == nil {
		t.Fatalf("expected negative duration error")
	}
	t.Setenv("X_OPT_INT", "-1")
	if _, err := optionalInt("X_OPT_INT"); err == nil {
		t.Fatalf("expected negative int error")
	}
	t.Setenv("X_OPT_FLOAT", "notfloat")
	if _, err := optionalFloat("X_OPT_FLOAT"); err == nil {
		t.Fatalf("expected float parse error")
	}
	t.Setenv("X_OPT_BOOL", "notbool")
	if _, err := optionalBool("X_OPT_BOOL"); err == nil {
		t.Fatalf("expected bool parse error")
	}
	t.Setenv("X_REQ_DUR", "bad")
	if _, err := requiredDuration("X_REQ_DUR"); err == nil {
		t.Fatalf("expected bad duration error")
	}
}
