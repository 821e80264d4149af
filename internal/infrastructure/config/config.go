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
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Telemetry  TelemetryConfig
	QuickBooks QuickBooksConfig
	Sync       SyncConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
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
	// AutoMigrate applies the embedded schema migrations at startup
	AutoMigrate bool
}

// RedisConfig holds Redis connection settings.
// Redis is optional: when disabled, entity locks are process-local.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled               bool    // Whether to enable tracing
	MetricsEnabled        bool    // Whether to export metrics
	CollectorEndpoint     string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio         float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName           string  // Service name for traces
	Insecure              bool    // Use insecure (non-TLS) connection (development only)
	MetricsExportInterval time.Duration
	DBTraceEnabled        bool // Enable database query tracing (otelgorm)
	DBLogFullSQL          bool // Log full SQL statements (dev only)
}

// QuickBooksConfig holds the accounting platform connection settings
type QuickBooksConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	Environment  string // sandbox, production

	// Endpoint overrides; empty values select the defaults of Environment
	APIBaseURL   string
	AuthorizeURL string
	TokenURL     string

	RequestTimeout time.Duration

	// StateSecret signs the OAuth state parameter
	StateSecret string
	StateTTL    time.Duration

	// Account references used when creating remote items. These are
	// company-specific ids on the accounting platform.
	IncomeAccountRef  string
	AssetAccountRef   string
	ExpenseAccountRef string
	ItemType          string // Inventory, NonInventory, Service

	// DefaultCustomerRef is used on invoices of sales without a synced customer
	DefaultCustomerRef string
	InvoiceDueDays     int

	// CallbackRedirectURL receives the browser after the OAuth callback;
	// empty answers the callback with JSON
	CallbackRedirectURL string
}

// SyncConfig holds sync job queue and locking settings
type SyncConfig struct {
	Workers        int
	QueueSize      int
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JobTimeout     time.Duration
	HistorySize    int
	BatchSize      int           // Page size when iterating local entities
	AutoInterval   time.Duration // 0 disables the periodic full sync
	LockTTL        time.Duration
	LockRetryDelay time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with RETAIL_ prefix (e.g., RETAIL_QUICKBOOKS_CLIENT_SECRET)
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

	v.SetEnvPrefix("RETAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Telemetry: TelemetryConfig{
			Enabled:               v.GetBool("telemetry.enabled"),
			MetricsEnabled:        v.GetBool("telemetry.metrics_enabled"),
			CollectorEndpoint:     v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:         v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:           v.GetString("telemetry.service_name"),
			Insecure:              v.GetBool("telemetry.insecure"),
			MetricsExportInterval: v.GetDuration("telemetry.metrics_export_interval"),
			DBTraceEnabled:        v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:          v.GetBool("telemetry.db_log_full_sql"),
		},
		QuickBooks: QuickBooksConfig{
			ClientID:           v.GetString("quickbooks.client_id"),
			ClientSecret:       v.GetString("quickbooks.client_secret"),
			RedirectURI:        v.GetString("quickbooks.redirect_uri"),
			Scopes:             v.GetStringSlice("quickbooks.scopes"),
			Environment:        v.GetString("quickbooks.environment"),
			APIBaseURL:         v.GetString("quickbooks.api_base_url"),
			AuthorizeURL:       v.GetString("quickbooks.authorize_url"),
			TokenURL:           v.GetString("quickbooks.token_url"),
			RequestTimeout:     v.GetDuration("quickbooks.request_timeout"),
			StateSecret:        v.GetString("quickbooks.state_secret"),
			StateTTL:           v.GetDuration("quickbooks.state_ttl"),
			IncomeAccountRef:   v.GetString("quickbooks.income_account_ref"),
			AssetAccountRef:    v.GetString("quickbooks.asset_account_ref"),
			ExpenseAccountRef:  v.GetString("quickbooks.expense_account_ref"),
			ItemType:           v.GetString("quickbooks.item_type"),
			DefaultCustomerRef: v.GetString("quickbooks.default_customer_ref"),
			InvoiceDueDays:     v.GetInt("quickbooks.invoice_due_days"),

			CallbackRedirectURL: v.GetString("quickbooks.callback_redirect_url"),
		},
		Sync: SyncConfig{
			Workers:        v.GetInt("sync.workers"),
			QueueSize:      v.GetInt("sync.queue_size"),
			MaxRetries:     v.GetInt("sync.max_retries"),
			InitialBackoff: v.GetDuration("sync.initial_backoff"),
			MaxBackoff:     v.GetDuration("sync.max_backoff"),
			JobTimeout:     v.GetDuration("sync.job_timeout"),
			HistorySize:    v.GetInt("sync.history_size"),
			BatchSize:      v.GetInt("sync.batch_size"),
			AutoInterval:   v.GetDuration("sync.auto_interval"),
			LockTTL:        v.GetDuration("sync.lock_ttl"),
			LockRetryDelay: v.GetDuration("sync.lock_retry_delay"),
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
		cfg.App.Name = "retail-accounting-sync"
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
		cfg.Database.DBName = "retail"
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
	// Bulk syncs run inside the request, so writes get more room than reads
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 5 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsExportInterval == 0 {
		cfg.Telemetry.MetricsExportInterval = 60 * time.Second
	}

	qb := &cfg.QuickBooks
	if qb.Environment == "" {
		qb.Environment = "sandbox"
	}
	if len(qb.Scopes) == 0 {
		qb.Scopes = []string{"com.intuit.quickbooks.accounting"}
	}
	if qb.RequestTimeout == 0 {
		qb.RequestTimeout = 30 * time.Second
	}
	if qb.StateTTL == 0 {
		qb.StateTTL = 10 * time.Minute
	}
	if qb.ItemType == "" {
		qb.ItemType = "NonInventory"
	}
	if qb.InvoiceDueDays == 0 {
		qb.InvoiceDueDays = 30
	}

	s := &cfg.Sync
	if s.Workers == 0 {
		s.Workers = 1
	}
	if s.QueueSize == 0 {
		s.QueueSize = 100
	}
	if s.MaxRetries == 0 {
		s.MaxRetries = 3
	}
	if s.InitialBackoff == 0 {
		s.InitialBackoff = 30 * time.Second
	}
	if s.MaxBackoff == 0 {
		s.MaxBackoff = 15 * time.Minute
	}
	if s.JobTimeout == 0 {
		s.JobTimeout = 30 * time.Minute
	}
	if s.HistorySize == 0 {
		s.HistorySize = 200
	}
	if s.BatchSize == 0 {
		s.BatchSize = 100
	}
	if s.LockTTL == 0 {
		s.LockTTL = 2 * time.Minute
	}
	if s.LockRetryDelay == 0 {
		s.LockRetryDelay = 100 * time.Millisecond
	}
}

// maxSyncBatchSize is the largest page the repositories return
const maxSyncBatchSize = 1000

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

	switch c.QuickBooks.Environment {
	case "sandbox", "production":
	default:
		return fmt.Errorf("quickbooks.environment must be 'sandbox' or 'production', got %q", c.QuickBooks.Environment)
	}
	switch c.QuickBooks.ItemType {
	case "Inventory", "NonInventory", "Service":
	default:
		return fmt.Errorf("quickbooks.item_type must be Inventory, NonInventory or Service, got %q", c.QuickBooks.ItemType)
	}
	if c.QuickBooks.ItemType == "Inventory" && (c.QuickBooks.AssetAccountRef == "" || c.QuickBooks.IncomeAccountRef == "" || c.QuickBooks.ExpenseAccountRef == "") {
		return fmt.Errorf("quickbooks.item_type=Inventory requires income, asset and expense account refs")
	}
	if c.QuickBooks.InvoiceDueDays < 0 {
		return fmt.Errorf("quickbooks.invoice_due_days cannot be negative")
	}

	if c.Sync.Workers < 1 {
		return fmt.Errorf("sync.workers must be at least 1")
	}
	if c.Sync.MaxRetries < 0 {
		return fmt.Errorf("sync.max_retries cannot be negative")
	}
	if c.Sync.AutoInterval < 0 {
		return fmt.Errorf("sync.auto_interval cannot be negative")
	}
	if c.Sync.BatchSize < 1 || c.Sync.BatchSize > maxSyncBatchSize {
		return fmt.Errorf("sync.batch_size must be between 1 and %d, got %d", maxSyncBatchSize, c.Sync.BatchSize)
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.QuickBooks.ClientID == "" || c.QuickBooks.ClientSecret == "" {
			return fmt.Errorf("quickbooks.client_id and quickbooks.client_secret are required in production")
		}
		if len(c.QuickBooks.StateSecret) < 32 {
			return fmt.Errorf("quickbooks.state_secret must be at least 32 characters in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
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
