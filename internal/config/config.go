package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Outbox   OutboxConfig   `mapstructure:"outbox"`
	Audit    AuditConfig    `mapstructure:"audit"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
}

type ServerConfig struct {
	Port           int `mapstructure:"port" envconfig:"SERVER_PORT"`
	TimeoutSeconds int `mapstructure:"timeout_seconds" envconfig:"SERVER_TIMEOUT_SECONDS"`
	RateLimit      int `mapstructure:"rate_limit" envconfig:"SERVER_RATE_LIMIT"`
	RateBurst      int `mapstructure:"rate_burst" envconfig:"SERVER_RATE_BURST"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host" envconfig:"DB_HOST"`
	Port     int    `mapstructure:"port" envconfig:"DB_PORT"`
	User     string `mapstructure:"user" envconfig:"DB_USER"`
	Password string `mapstructure:"password" envconfig:"DB_PASSWORD"`
	Name     string `mapstructure:"name" envconfig:"DB_NAME"`
	SSLMode  string `mapstructure:"sslmode" envconfig:"DB_SSLMODE"`
}

type RedisConfig struct {
	URL          string `mapstructure:"url" envconfig:"REDIS_URL"`
	MaxRetries   int    `mapstructure:"max_retries" envconfig:"REDIS_MAX_RETRIES"`
	PoolSize     int    `mapstructure:"pool_size" envconfig:"REDIS_POOL_SIZE"`
	MinIdleConns int    `mapstructure:"min_idle_conns" envconfig:"REDIS_MIN_IDLE_CONNS"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret" envconfig:"JWT_SECRET"`
	ExpiryHours int    `mapstructure:"expiry_hours" envconfig:"JWT_EXPIRY_HOURS"`
}

// EngineConfig tunes the balancing engine. The defaults encode the floor
// rules: five minutes of grace before a delay counts, fifteen minutes of
// delay before a dry-run suggestion is surfaced.
type EngineConfig struct {
	GraceMinutes             int `mapstructure:"grace_minutes" envconfig:"ENGINE_GRACE_MINUTES"`
	ReassignThresholdMinutes int `mapstructure:"reassign_threshold_minutes" envconfig:"ENGINE_REASSIGN_THRESHOLD_MINUTES"`
	CadenceSeconds           int `mapstructure:"cadence_seconds" envconfig:"ENGINE_CADENCE_SECONDS"`
	SnapshotTTLSeconds       int `mapstructure:"snapshot_ttl_seconds" envconfig:"ENGINE_SNAPSHOT_TTL_SECONDS"`
	SnapshotFreshnessSeconds int `mapstructure:"snapshot_freshness_seconds" envconfig:"ENGINE_SNAPSHOT_FRESHNESS_SECONDS"`
	MaxCascade               int `mapstructure:"max_cascade" envconfig:"ENGINE_MAX_CASCADE"`
}

type OutboxConfig struct {
	BatchSize           int `mapstructure:"batch_size" envconfig:"OUTBOX_BATCH_SIZE"`
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" envconfig:"OUTBOX_POLL_INTERVAL_SECONDS"`
	RetryAttempts       int `mapstructure:"retry_attempts" envconfig:"OUTBOX_RETRY_ATTEMPTS"`
	RetryDelaySeconds   int `mapstructure:"retry_delay_seconds" envconfig:"OUTBOX_RETRY_DELAY_SECONDS"`
}

type AuditConfig struct {
	RetentionDays        int `mapstructure:"retention_days" envconfig:"AUDIT_RETENTION_DAYS"`
	CleanupIntervalHours int `mapstructure:"cleanup_interval_hours" envconfig:"AUDIT_CLEANUP_INTERVAL_HOURS"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host" envconfig:"SMTP_HOST"`
	Port     int    `mapstructure:"port" envconfig:"SMTP_PORT"`
	Username string `mapstructure:"username" envconfig:"SMTP_USERNAME"`
	Password string `mapstructure:"password" envconfig:"SMTP_PASSWORD"`
	From     string `mapstructure:"from" envconfig:"SMTP_FROM"`
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.timeout_seconds", 30)
	viper.SetDefault("server.rate_limit", 100)
	viper.SetDefault("server.rate_burst", 200)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.name", "balancer")

	viper.SetDefault("redis.url", "redis://localhost:6379/0")
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.min_idle_conns", 2)

	viper.SetDefault("jwt.expiry_hours", 24)

	viper.SetDefault("engine.grace_minutes", 5)
	viper.SetDefault("engine.reassign_threshold_minutes", 15)
	viper.SetDefault("engine.cadence_seconds", 60)
	viper.SetDefault("engine.snapshot_ttl_seconds", 15)
	viper.SetDefault("engine.snapshot_freshness_seconds", 120)
	viper.SetDefault("engine.max_cascade", 32)

	viper.SetDefault("outbox.batch_size", 100)
	viper.SetDefault("outbox.poll_interval_seconds", 5)
	viper.SetDefault("outbox.retry_attempts", 3)
	viper.SetDefault("outbox.retry_delay_seconds", 5)

	viper.SetDefault("audit.retention_days", 90)
	viper.SetDefault("audit.cleanup_interval_hours", 24)

	viper.SetDefault("smtp.port", 587)
}

// LoadConfig reads config.yaml when present and then lets environment
// variables override it, so containers run on env alone.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	setDefaults()
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("failed to process environment overrides: %w", err)
	}

	if config.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &config, nil
}

func (c *Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

func (c *EngineConfig) Grace() time.Duration {
	return time.Duration(c.GraceMinutes) * time.Minute
}

func (c *EngineConfig) Cadence() time.Duration {
	return time.Duration(c.CadenceSeconds) * time.Second
}

func (c *EngineConfig) SnapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLSeconds) * time.Second
}

func (c *EngineConfig) SnapshotFreshness() time.Duration {
	return time.Duration(c.SnapshotFreshnessSeconds) * time.Second
}

func (c *OutboxConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c *OutboxConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

func (c *AuditConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalHours) * time.Hour
}
