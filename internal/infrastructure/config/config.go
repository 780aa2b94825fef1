package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Event     EventConfig
	Jobs      JobsConfig
	Webhook   WebhookConfig
	PriceSync PriceSyncConfig
	Bling     BlingConfig
	Token     TokenConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds JWT settings for the management API
type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
	IdleTimeout              time.Duration
	MaxHeaderBytes           int
	MaxBodySize              int64
	WebhookRateLimitEnabled  bool
	WebhookRateLimitRequests int
	WebhookRateLimitWindow   time.Duration
	TrustedProxies           []string
}

// EventConfig holds event bus and distribution configuration
type EventConfig struct {
	QueueSize      int
	BatchSize      int
	PollInterval   time.Duration
	HandlerTimeout time.Duration
	MaxConcurrency int
	// MaxRetries is the delivery ceiling stamped on each published event
	MaxRetries int
	// DeadRetryEnabled runs the dead-letter re-injection loop; defaults on
	DeadRetryEnabled bool
	DeadRetryWindow  time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
}

// JobsConfig holds job orchestrator configuration
type JobsConfig struct {
	QueueSize         int
	MaxConcurrentJobs int
	TickInterval      time.Duration
	DefaultTimeout    time.Duration
	MaxRetries        int
	RetryBaseDelay    time.Duration
	RetryFactor       float64
	ShutdownGrace     time.Duration
	CleanupRetention  time.Duration
}

// WebhookConfig holds webhook ingestion configuration
type WebhookConfig struct {
	// Freshness bounds how old a signed timestamp may be before the
	// delivery is rejected
	Freshness      time.Duration
	MaxRetries     int
	RetryInterval  time.Duration
	IdempotencyTTL time.Duration
}

// PriceSyncConfig holds price synchronization engine configuration
type PriceSyncConfig struct {
	Enabled       bool
	SweepInterval time.Duration
	PageSize      int
	// TolerancePct is the default change threshold, overridable per tenant
	TolerancePct     float64
	ConflictLookback time.Duration
	CacheTTL         time.Duration
}

// BlingConfig holds ERP API client configuration
type BlingConfig struct {
	BaseURL           string
	TokenURL          string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
}

// TokenConfig holds token refresh coordinator configuration
type TokenConfig struct {
	ExpiryBuffer  time.Duration
	RefreshWait   time.Duration
	SweepInterval time.Duration
	CacheTTL      time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with BLINGSYNC_ prefix (e.g., BLINGSYNC_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("BLINGSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// boolean knobs that default on; GetBool cannot tell unset from false
	v.SetDefault("event.dead_retry_enabled", true)
	v.SetDefault("event.cleanup_enabled", true)
	v.SetDefault("price_sync.enabled", true)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("jwt.secret"),
			Issuer:     v.GetString("jwt.issuer"),
			Expiration: v.GetDuration("jwt.expiration"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:              v.GetDuration("http.read_timeout"),
			WriteTimeout:             v.GetDuration("http.write_timeout"),
			IdleTimeout:              v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:           v.GetInt("http.max_header_bytes"),
			MaxBodySize:              v.GetInt64("http.max_body_size"),
			WebhookRateLimitEnabled:  v.GetBool("http.webhook_rate_limit_enabled"),
			WebhookRateLimitRequests: v.GetInt("http.webhook_rate_limit_requests"),
			WebhookRateLimitWindow:   v.GetDuration("http.webhook_rate_limit_window"),
			TrustedProxies:           v.GetStringSlice("http.trusted_proxies"),
		},
		Event: EventConfig{
			QueueSize:        v.GetInt("event.queue_size"),
			BatchSize:        v.GetInt("event.batch_size"),
			PollInterval:     v.GetDuration("event.poll_interval"),
			HandlerTimeout:   v.GetDuration("event.handler_timeout"),
			MaxConcurrency:   v.GetInt("event.max_concurrency"),
			MaxRetries:       v.GetInt("event.max_retries"),
			DeadRetryEnabled: v.GetBool("event.dead_retry_enabled"),
			DeadRetryWindow:  v.GetDuration("event.dead_retry_window"),
			CleanupEnabled:   v.GetBool("event.cleanup_enabled"),
			CleanupRetention: v.GetDuration("event.cleanup_retention"),
		},
		Jobs: JobsConfig{
			QueueSize:         v.GetInt("jobs.queue_size"),
			MaxConcurrentJobs: v.GetInt("jobs.max_concurrent_jobs"),
			TickInterval:      v.GetDuration("jobs.tick_interval"),
			DefaultTimeout:    v.GetDuration("jobs.default_timeout"),
			MaxRetries:        v.GetInt("jobs.max_retries"),
			RetryBaseDelay:    v.GetDuration("jobs.retry_base_delay"),
			RetryFactor:       v.GetFloat64("jobs.retry_factor"),
			ShutdownGrace:     v.GetDuration("jobs.shutdown_grace"),
			CleanupRetention:  v.GetDuration("jobs.cleanup_retention"),
		},
		Webhook: WebhookConfig{
			Freshness:      v.GetDuration("webhook.freshness"),
			MaxRetries:     v.GetInt("webhook.max_retries"),
			RetryInterval:  v.GetDuration("webhook.retry_interval"),
			IdempotencyTTL: v.GetDuration("webhook.idempotency_ttl"),
		},
		PriceSync: PriceSyncConfig{
			Enabled:          v.GetBool("price_sync.enabled"),
			SweepInterval:    v.GetDuration("price_sync.sweep_interval"),
			PageSize:         v.GetInt("price_sync.page_size"),
			TolerancePct:     v.GetFloat64("price_sync.tolerance_pct"),
			ConflictLookback: v.GetDuration("price_sync.conflict_lookback"),
			CacheTTL:         v.GetDuration("price_sync.cache_ttl"),
		},
		Bling: BlingConfig{
			BaseURL:           v.GetString("bling.base_url"),
			TokenURL:          v.GetString("bling.token_url"),
			Timeout:           v.GetDuration("bling.timeout"),
			RequestsPerSecond: v.GetFloat64("bling.requests_per_second"),
			Burst:             v.GetInt("bling.burst"),
			MaxRetries:        v.GetInt("bling.max_retries"),
			RetryBaseDelay:    v.GetDuration("bling.retry_base_delay"),
			RetryMaxDelay:     v.GetDuration("bling.retry_max_delay"),
		},
		Token: TokenConfig{
			ExpiryBuffer:  v.GetDuration("token.expiry_buffer"),
			RefreshWait:   v.GetDuration("token.refresh_wait"),
			SweepInterval: v.GetDuration("token.sweep_interval"),
			CacheTTL:      v.GetDuration("token.cache_ttl"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "blingsync-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "blingsync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "blingsync-backend"
	}
	if cfg.JWT.Expiration == 0 {
		cfg.JWT.Expiration = time.Hour
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 5 << 20 // 5MB
	}
	if cfg.HTTP.WebhookRateLimitRequests == 0 {
		cfg.HTTP.WebhookRateLimitRequests = 300
	}
	if cfg.HTTP.WebhookRateLimitWindow == 0 {
		cfg.HTTP.WebhookRateLimitWindow = time.Minute
	}
	if cfg.Event.QueueSize == 0 {
		cfg.Event.QueueSize = 1000
	}
	if cfg.Event.BatchSize == 0 {
		cfg.Event.BatchSize = 100
	}
	if cfg.Event.PollInterval == 0 {
		cfg.Event.PollInterval = 5 * time.Second
	}
	if cfg.Event.HandlerTimeout == 0 {
		cfg.Event.HandlerTimeout = 30 * time.Second
	}
	if cfg.Event.MaxConcurrency == 0 {
		cfg.Event.MaxConcurrency = 10
	}
	if cfg.Event.MaxRetries == 0 {
		cfg.Event.MaxRetries = 5
	}
	if cfg.Event.DeadRetryWindow == 0 {
		cfg.Event.DeadRetryWindow = time.Hour
	}
	if cfg.Event.CleanupRetention == 0 {
		cfg.Event.CleanupRetention = 168 * time.Hour
	}
	if cfg.Jobs.QueueSize == 0 {
		cfg.Jobs.QueueSize = 500
	}
	if cfg.Jobs.MaxConcurrentJobs == 0 {
		cfg.Jobs.MaxConcurrentJobs = 5
	}
	if cfg.Jobs.TickInterval == 0 {
		cfg.Jobs.TickInterval = time.Second
	}
	if cfg.Jobs.DefaultTimeout == 0 {
		cfg.Jobs.DefaultTimeout = 30 * time.Minute
	}
	if cfg.Jobs.MaxRetries == 0 {
		cfg.Jobs.MaxRetries = 3
	}
	if cfg.Jobs.RetryBaseDelay == 0 {
		cfg.Jobs.RetryBaseDelay = 5 * time.Second
	}
	if cfg.Jobs.RetryFactor == 0 {
		cfg.Jobs.RetryFactor = 2.0
	}
	if cfg.Jobs.ShutdownGrace == 0 {
		cfg.Jobs.ShutdownGrace = 30 * time.Second
	}
	if cfg.Jobs.CleanupRetention == 0 {
		cfg.Jobs.CleanupRetention = 72 * time.Hour
	}
	if cfg.Webhook.Freshness == 0 {
		cfg.Webhook.Freshness = 5 * time.Minute
	}
	if cfg.Webhook.MaxRetries == 0 {
		cfg.Webhook.MaxRetries = 3
	}
	if cfg.Webhook.RetryInterval == 0 {
		cfg.Webhook.RetryInterval = time.Minute
	}
	if cfg.Webhook.IdempotencyTTL == 0 {
		cfg.Webhook.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.PriceSync.SweepInterval == 0 {
		cfg.PriceSync.SweepInterval = 15 * time.Minute
	}
	if cfg.PriceSync.PageSize == 0 {
		cfg.PriceSync.PageSize = 100
	}
	if cfg.PriceSync.TolerancePct == 0 {
		cfg.PriceSync.TolerancePct = 0.5
	}
	if cfg.PriceSync.ConflictLookback == 0 {
		cfg.PriceSync.ConflictLookback = time.Hour
	}
	if cfg.PriceSync.CacheTTL == 0 {
		cfg.PriceSync.CacheTTL = 5 * time.Minute
	}
	if cfg.Bling.BaseURL == "" {
		cfg.Bling.BaseURL = "https://api.bling.com.br/Api/v3"
	}
	if cfg.Bling.TokenURL == "" {
		cfg.Bling.TokenURL = "https://api.bling.com.br/Api/v3/oauth/token"
	}
	if cfg.Bling.Timeout == 0 {
		cfg.Bling.Timeout = 30 * time.Second
	}
	if cfg.Bling.RequestsPerSecond == 0 {
		cfg.Bling.RequestsPerSecond = 3
	}
	if cfg.Bling.Burst == 0 {
		cfg.Bling.Burst = 5
	}
	if cfg.Bling.MaxRetries == 0 {
		cfg.Bling.MaxRetries = 4
	}
	if cfg.Bling.RetryBaseDelay == 0 {
		cfg.Bling.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.Bling.RetryMaxDelay == 0 {
		cfg.Bling.RetryMaxDelay = 30 * time.Second
	}
	if cfg.Token.ExpiryBuffer == 0 {
		cfg.Token.ExpiryBuffer = 5 * time.Minute
	}
	if cfg.Token.RefreshWait == 0 {
		cfg.Token.RefreshWait = 10 * time.Second
	}
	if cfg.Token.SweepInterval == 0 {
		cfg.Token.SweepInterval = time.Minute
	}
	if cfg.Token.CacheTTL == 0 {
		cfg.Token.CacheTTL = 30 * time.Minute
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.PriceSync.TolerancePct < 0 {
		return fmt.Errorf("price_sync.tolerance_pct cannot be negative")
	}
	if c.Bling.RequestsPerSecond <= 0 {
		return fmt.Errorf("bling.requests_per_second must be positive")
	}
	if c.Jobs.RetryFactor < 1 {
		return fmt.Errorf("jobs.retry_factor must be at least 1")
	}

	if c.App.Env == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the host:port address for Redis
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
