package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/aussiebroadwan/gatekeeper/internal/gateway/domain"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
)

// ConfigFileEnv names the optional TOML file read before the environment.
const ConfigFileEnv = "GATEKEEPER_CONFIG"

// Store and KV drivers.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	KVMemory      = "memory"
	KVRedis       = "redis"
)

type Config struct {
	Issuer string `toml:"issuer"` // iss claim and TOTP issuer label (default: gatekeeper)

	AccessSecret    string        `toml:"access_secret"`     // Required: HMAC secret for access tokens
	TwoFactorSecret string        `toml:"two_factor_secret"` // Required: HMAC secret for 2fa challenge tokens
	RefreshSecret   string        `toml:"refresh_secret"`    // Required: HMAC secret for refresh tokens
	AccessTTL       time.Duration `toml:"access_ttl"`        // default: 15m
	TwoFactorTTL    time.Duration `toml:"two_factor_ttl"`    // default: 5m
	RefreshTTL      time.Duration `toml:"refresh_ttl"`       // default: 7d

	EncryptionKey string               `toml:"encryption_key"` // Required: secret the 2fa/refresh cipher key is derived from
	PepperFile    string               `toml:"pepper_file"`    // Password hashing pepper (default: ./pepper)
	RefreshKeying domain.RefreshKeying `toml:"refresh_keying"` // token or email (default: token)

	StoreDriver  string `toml:"store_driver"`  // sqlite or postgres (default: sqlite)
	DatabaseFile string `toml:"database_file"` // SQLite file (default: ./gatekeeper.db)
	DatabaseURL  string `toml:"database_url"`  // Postgres DSN, required for postgres

	KVDriver string `toml:"kv_driver"` // memory or redis (default: memory)
	RedisURL string `toml:"redis_url"` // required for redis

	VerifyEmailURL   string `toml:"verify_email_url"`   // Base of the link in verification mail
	ResetPasswordURL string `toml:"reset_password_url"` // Base of the link in reset mail
	EmailQueueSize   int    `toml:"email_queue_size"`   // default: 64

	Env                 string        `toml:"env"`                   // dev, staging, prod (default: dev)
	LogLevel            string        `toml:"log_level"`             // debug, info, warn, error (default: info)
	LogFormat           string        `toml:"log_format"`            // json, text (default: json)
	Port                int           `toml:"port"`                  // default: 8080
	ShutdownGracePeriod time.Duration `toml:"shutdown_grace_period"` // default: 10s
}

// DefaultConfig holds every optional setting at its default. Secrets are left
// empty.
func DefaultConfig() Config {
	return Config{
		Issuer:              "gatekeeper",
		AccessTTL:           jwtx.DefaultAccessTokenTTL,
		TwoFactorTTL:        jwtx.DefaultTwoFactorTokenTTL,
		RefreshTTL:          jwtx.DefaultRefreshTokenTTL,
		PepperFile:          "pepper",
		RefreshKeying:       domain.RefreshKeyingToken,
		StoreDriver:         StoreSQLite,
		DatabaseFile:        "gatekeeper.db",
		KVDriver:            KVMemory,
		VerifyEmailURL:      "http://localhost:3000/verify-email",
		ResetPasswordURL:    "http://localhost:3000/reset-password",
		EmailQueueSize:      64,
		Env:                 "dev",
		LogLevel:            "info",
		LogFormat:           "json",
		Port:                8080,
		ShutdownGracePeriod: 10 * time.Second,
	}
}

// LoadConfig starts from DefaultConfig, decodes the file named by
// GATEKEEPER_CONFIG when set, then applies environment overrides.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to decode config file %s: %w", path, err)
		}
	}

	cfg.Issuer = getEnvOrDefault("AUTH_ISSUER", cfg.Issuer)

	cfg.AccessSecret = getEnvOrDefault("JWT_SECRET", cfg.AccessSecret)
	cfg.TwoFactorSecret = getEnvOrDefault("JWT_2FA_SECRET", cfg.TwoFactorSecret)
	cfg.RefreshSecret = getEnvOrDefault("JWT_REFRESH_SECRET", cfg.RefreshSecret)
	cfg.AccessTTL = getEnvDurationOrDefault("JWT_EXPIRES_IN", cfg.AccessTTL)
	cfg.TwoFactorTTL = getEnvDurationOrDefault("JWT_2FA_EXPIRES_IN", cfg.TwoFactorTTL)
	cfg.RefreshTTL = getEnvDurationOrDefault("JWT_REFRESH_EXPIRES_IN", cfg.RefreshTTL)

	cfg.EncryptionKey = getEnvOrDefault("ENCRYPTION_KEY", cfg.EncryptionKey)
	cfg.PepperFile = getEnvOrDefault("AUTH_PEPPER_FILE", cfg.PepperFile)
	cfg.RefreshKeying = domain.RefreshKeying(getEnvOrDefault("AUTH_REFRESH_KEYING", string(cfg.RefreshKeying)))

	cfg.StoreDriver = getEnvOrDefault("STORE_DRIVER", cfg.StoreDriver)
	cfg.DatabaseFile = getEnvOrDefault("DATABASE_FILE", cfg.DatabaseFile)
	cfg.DatabaseURL = getEnvOrDefault("DATABASE_URL", cfg.DatabaseURL)

	cfg.KVDriver = getEnvOrDefault("KV_DRIVER", cfg.KVDriver)
	cfg.RedisURL = getEnvOrDefault("REDIS_URL", cfg.RedisURL)

	cfg.VerifyEmailURL = getEnvOrDefault("BASE_URL_VERIFY_EMAIL", cfg.VerifyEmailURL)
	cfg.ResetPasswordURL = getEnvOrDefault("BASE_URL_RESET_PASSWORD", cfg.ResetPasswordURL)
	cfg.EmailQueueSize = getEnvIntOrDefault("EMAIL_QUEUE_SIZE", cfg.EmailQueueSize)

	cfg.Env = getEnvOrDefault("ENV", cfg.Env)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.Port = getEnvIntOrDefault("PORT", cfg.Port)
	cfg.ShutdownGracePeriod = getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", cfg.ShutdownGracePeriod)

	return cfg, nil
}

// Validate reports every problem with cfg at once.
func (cfg Config) Validate() error {
	var errs []error

	required := []struct{ name, value string }{
		{"JWT_SECRET", cfg.AccessSecret},
		{"JWT_2FA_SECRET", cfg.TwoFactorSecret},
		{"JWT_REFRESH_SECRET", cfg.RefreshSecret},
		{"ENCRYPTION_KEY", cfg.EncryptionKey},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.name))
		}
	}

	if cfg.AccessTTL <= 0 || cfg.TwoFactorTTL <= 0 || cfg.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}

	if !cfg.RefreshKeying.Valid() {
		errs = append(errs, fmt.Errorf("AUTH_REFRESH_KEYING must be token or email, got %q", cfg.RefreshKeying))
	}

	switch cfg.StoreDriver {
	case StoreSQLite:
		if cfg.DatabaseFile == "" {
			errs = append(errs, errors.New("DATABASE_FILE is required for the sqlite store"))
		}
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver))
	}

	switch cfg.KVDriver {
	case KVMemory:
	case KVRedis:
		if cfg.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis kv store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown KV_DRIVER %q", cfg.KVDriver))
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Day suffix, e.g. "7d"
	if days, ok := strings.CutSuffix(value, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil {
			return time.Duration(n) * 24 * time.Hour
		}
	}

	// Bare integers are seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
