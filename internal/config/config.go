package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string

	TrustDomain   string
	IssuerBaseURL string
	IdentityEnv   string

	AdminAPIKey string

	VaultAddr   string
	VaultToken  string
	MasterKeyID string
	// MasterKeyBase64 bypasses Vault for local development and tests.
	MasterKeyBase64 string

	DirectTokenTTLSeconds  int
	KeyGracePeriodSeconds  int
	ExchangeTimeoutSeconds int
	ExchangeProxyURL       string

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitMaxKeys       int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:               addr,
		PostgresDSN:            os.Getenv("POSTGRES_DSN"),
		LogLevel:               envDefault("LOG_LEVEL", "info"),
		TrustDomain:            envDefault("TRUST_DOMAIN", "carbide.local"),
		IssuerBaseURL:          os.Getenv("ISSUER_BASE_URL"),
		IdentityEnv:            os.Getenv("IDENTITY_ENV"),
		AdminAPIKey:            os.Getenv("ADMIN_API_KEY"),
		VaultAddr:              os.Getenv("VAULT_ADDR"),
		VaultToken:             os.Getenv("VAULT_TOKEN"),
		MasterKeyID:            os.Getenv("MASTER_KEY_ID"),
		MasterKeyBase64:        os.Getenv("MASTER_KEY_BASE64"),
		DirectTokenTTLSeconds:  envIntDefault("DIRECT_TOKEN_TTL_SECONDS", 600),
		KeyGracePeriodSeconds:  envIntDefault("KEY_GRACE_PERIOD_SECONDS", 900),
		ExchangeTimeoutSeconds: envIntDefault("EXCHANGE_TIMEOUT_SECONDS", 10),
		ExchangeProxyURL:       os.Getenv("EXCHANGE_PROXY_URL"),
		RateLimitRequests:      envIntDefault("RATE_LIMIT_REQUESTS", 3),
		RateLimitWindowSeconds: envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 1),
		RateLimitMaxKeys:       envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                envIntDefault("REDIS_DB", 0),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func (c Config) DirectTokenTTL() time.Duration {
	if c.DirectTokenTTLSeconds <= 0 {
		return 600 * time.Second
	}
	return time.Duration(c.DirectTokenTTLSeconds) * time.Second
}

func (c Config) KeyGracePeriod() time.Duration {
	if c.KeyGracePeriodSeconds <= 0 {
		return 0
	}
	return time.Duration(c.KeyGracePeriodSeconds) * time.Second
}

func (c Config) ExchangeTimeout() time.Duration {
	if c.ExchangeTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ExchangeTimeoutSeconds) * time.Second
}

func (c Config) RateLimitWindow() time.Duration {
	if c.RateLimitWindowSeconds <= 0 {
		return time.Second
	}
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}
