package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Balance   BalanceConfig   `mapstructure:"balance"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	DBName           string        `mapstructure:"dbname"`
	SSLMode          string        `mapstructure:"sslmode"`
	MaxConns         int32         `mapstructure:"max_conns"`
	MinConns         int32         `mapstructure:"min_conns"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"` // per mutation transaction; 0 = server default
	AutoMigrate      bool          `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
	// Cache and limiter calls fail open, so they should give up quickly.
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	OpTimeout   time.Duration `mapstructure:"op_timeout"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// WebhookConfig holds the payment-processor signing keyring.
// Secrets maps key id to shared secret; several keys may be live during rotation.
type WebhookConfig struct {
	Secrets         map[string]string `mapstructure:"secrets"`
	ActiveKeyID     string            `mapstructure:"active_key_id"`
	SignatureHeader string            `mapstructure:"signature_header"`
	KeyIDHeader     string            `mapstructure:"key_id_header"`
}

// WalletConfig tunes the compare-and-set retry loop.
type WalletConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialBackoff  time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff      time.Duration `mapstructure:"max_backoff"`
	DefaultCurrency string        `mapstructure:"default_currency"`
}

type BalanceConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type ReconcileConfig struct {
	Interval    time.Duration `mapstructure:"interval"` // 0 disables the background loop
	Concurrency int           `mapstructure:"concurrency"`
	Heal        bool          `mapstructure:"heal"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: ESC_.
// Nested keys use underscore: ESC_DATABASE_HOST, ESC_WALLET_MAX_ATTEMPTS, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "escrow_ledger")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.statement_timeout", "5s")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.dial_timeout", "2s")
	v.SetDefault("redis.op_timeout", "250ms")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "escrow-ledger")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("webhook.active_key_id", "")
	v.SetDefault("webhook.signature_header", "X-Signature")
	v.SetDefault("webhook.key_id_header", "X-Signature-Key-Id")
	v.SetDefault("wallet.max_attempts", 5)
	v.SetDefault("wallet.initial_backoff", "20ms")
	v.SetDefault("wallet.max_backoff", "500ms")
	v.SetDefault("wallet.default_currency", "INR")
	v.SetDefault("balance.cache_ttl", "3s")
	v.SetDefault("reconcile.interval", "1m")
	v.SetDefault("reconcile.concurrency", 4)
	v.SetDefault("reconcile.heal", true)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: ESC_DATABASE_HOST -> database.host
	v.SetEnvPrefix("ESC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional, env vars can suffice.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// A single secret may be supplied through the environment without a keyring.
	if secret := v.GetString("webhook.secret"); secret != "" {
		if cfg.Webhook.Secrets == nil {
			cfg.Webhook.Secrets = map[string]string{}
		}
		keyID := cfg.Webhook.ActiveKeyID
		if keyID == "" {
			keyID = "default"
			cfg.Webhook.ActiveKeyID = keyID
		}
		cfg.Webhook.Secrets[keyID] = secret
	}

	return &cfg, nil
}

// Validate checks the settings the processing paths cannot run without.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Webhook.Secrets) == 0 {
		errs = append(errs, errors.New("webhook.secrets: at least one signing secret is required"))
	}
	if c.Webhook.ActiveKeyID != "" {
		if _, ok := c.Webhook.Secrets[c.Webhook.ActiveKeyID]; !ok {
			errs = append(errs, fmt.Errorf("webhook.active_key_id %q has no secret", c.Webhook.ActiveKeyID))
		}
	}
	if c.Wallet.MaxAttempts < 1 {
		errs = append(errs, errors.New("wallet.max_attempts must be at least 1"))
	}
	if c.Wallet.InitialBackoff <= 0 || c.Wallet.MaxBackoff < c.Wallet.InitialBackoff {
		errs = append(errs, errors.New("wallet backoff must satisfy 0 < initial_backoff <= max_backoff"))
	}
	if len(c.Wallet.DefaultCurrency) != 3 {
		errs = append(errs, fmt.Errorf("wallet.default_currency %q is not a 3-letter code", c.Wallet.DefaultCurrency))
	}
	if c.Reconcile.Concurrency < 1 {
		errs = append(errs, errors.New("reconcile.concurrency must be at least 1"))
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("server.mode %q must be debug, release or test", c.Server.Mode))
	}
	if c.Database.StatementTimeout < 0 {
		errs = append(errs, errors.New("database.statement_timeout must not be negative"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}

	return errors.Join(errs...)
}
