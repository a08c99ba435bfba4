package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/receiptdrop/accounts/pkg/observability"
	"github.com/receiptdrop/accounts/pkg/pii"
	"github.com/receiptdrop/accounts/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Security configuration (encryption key, webhook secret)
	Security SecurityConfig

	// Billing portal collaborator
	Portal PortalConfig

	// New-user sync configuration
	Sync SyncConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// SecurityConfig holds the secrets injected into the codec, hasher, and
// webhook verifier. All three are required.
type SecurityConfig struct {
	// EncryptionKey is the hex-encoded 32-byte AES key for PII at rest.
	EncryptionKey string

	// EmailHashSalt salts the deterministic email lookup hash.
	EmailHashSalt string

	// WebhookSecret is the shared secret for provider event signatures.
	WebhookSecret string

	// SignatureTolerance bounds event timestamp drift.
	SignatureTolerance time.Duration
}

// PortalConfig holds billing-portal provider settings
type PortalConfig struct {
	BaseURL   string
	APIKey    string
	ReturnURL string
	Timeout   time.Duration
}

// SyncConfig holds new-user sync settings
type SyncConfig struct {
	// Schedule is a cron expression for the sweep.
	Schedule    string
	BatchSize   int
	InboxDomain string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Security:      loadSecurityConfig(),
		Portal:        loadPortalConfig(),
		Sync:          loadSyncConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("ACCOUNTS_HOST", "0.0.0.0"),
		Port:            getEnv("ACCOUNTS_PORT", "8080"),
		ReadTimeout:     getEnvDuration("ACCOUNTS_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("ACCOUNTS_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("ACCOUNTS_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("ACCOUNTS_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("ACCOUNTS_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	cfg.PostgresURL = getEnv("ACCOUNTS_POSTGRES_URL", "")
	if maxConns := getEnvInt("ACCOUNTS_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("ACCOUNTS_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("ACCOUNTS_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	if redisURL := getEnv("ACCOUNTS_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
		cfg.CacheEnabled = true
	}
	if redisPassword := getEnv("ACCOUNTS_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("ACCOUNTS_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisPoolSize := getEnvInt("ACCOUNTS_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}
	if cacheEnabled := getEnv("ACCOUNTS_CACHE_ENABLED", ""); cacheEnabled != "" {
		cfg.CacheEnabled = strings.ToLower(cacheEnabled) == "true" || cacheEnabled == "1"
	}
	if cacheTTL := getEnvDuration("ACCOUNTS_CACHE_TTL", 0); cacheTTL > 0 {
		cfg.CacheTTL = cacheTTL
	}

	return cfg
}

// loadSecurityConfig loads secrets from environment
func loadSecurityConfig() SecurityConfig {
	return SecurityConfig{
		EncryptionKey:      getEnv("ACCOUNTS_ENCRYPTION_KEY", ""),
		EmailHashSalt:      getEnv("ACCOUNTS_EMAIL_HASH_SALT", ""),
		WebhookSecret:      getEnv("ACCOUNTS_WEBHOOK_SECRET", ""),
		SignatureTolerance: getEnvDuration("ACCOUNTS_SIGNATURE_TOLERANCE", 5*time.Minute),
	}
}

// loadPortalConfig loads billing-portal settings from environment
func loadPortalConfig() PortalConfig {
	return PortalConfig{
		BaseURL:   getEnv("ACCOUNTS_PORTAL_BASE_URL", "https://api.stripe.com"),
		APIKey:    getEnv("ACCOUNTS_PORTAL_API_KEY", ""),
		ReturnURL: getEnv("ACCOUNTS_PORTAL_RETURN_URL", ""),
		Timeout:   getEnvDuration("ACCOUNTS_PORTAL_TIMEOUT", 10*time.Second),
	}
}

// loadSyncConfig loads new-user sync settings from environment
func loadSyncConfig() SyncConfig {
	return SyncConfig{
		Schedule:    getEnv("ACCOUNTS_SYNC_SCHEDULE", "*/5 * * * *"),
		BatchSize:   getEnvInt("ACCOUNTS_SYNC_BATCH_SIZE", 100),
		InboxDomain: getEnv("ACCOUNTS_INBOX_DOMAIN", "inbox.receiptdrop.dev"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("ACCOUNTS_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("ACCOUNTS_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	key, err := hex.DecodeString(c.Security.EncryptionKey)
	if err != nil {
		return fmt.Errorf("encryption key must be hex-encoded: %w", err)
	}
	if len(key) != pii.KeySize {
		return fmt.Errorf("encryption key must be %d bytes, got %d", pii.KeySize, len(key))
	}
	if c.Security.EmailHashSalt == "" {
		return fmt.Errorf("email hash salt is required")
	}
	if c.Security.WebhookSecret == "" {
		return fmt.Errorf("webhook secret is required")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
