package config

import (
	"fmt"
	"time"
)

// Default configuration values.
const (
	defaultServiceName  = "conversions"
	defaultServicePort  = 8096
	defaultVersion      = "0.1.0"
	defaultLoggingLevel = "info"

	defaultReconcileWindow = 10 * time.Minute

	defaultRedisAddress = "localhost:6379"

	defaultDBHost    = "localhost"
	defaultDBPort    = 5432
	defaultDBName    = "conversions"
	defaultDBUser    = "postgres"
	defaultDBSSLMode = "disable"

	defaultVisitorCookie = "ll_vid"

	defaultEventLogBufferSize     = 1000
	defaultEventLogFlushThreshold = 100
	defaultEventLogFlushInterval  = 2 * time.Second

	defaultClientTimeout = 10 * time.Second
)

// Config holds the application configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Redis     RedisConfig     `yaml:"redis"`
	Database  DatabaseConfig  `yaml:"database"`
	Clicks    ClientConfig    `yaml:"clicks"`
	Leads     ClientConfig    `yaml:"leads"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Providers ProvidersConfig `yaml:"providers"`
	EventLog  EventLogConfig  `yaml:"event_log"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name          string `yaml:"name"`
	Version       string `yaml:"version"`
	Port          int    `env:"CONVERSIONS_PORT" yaml:"port"`
	Debug         bool   `env:"APP_DEBUG"        yaml:"debug"`
	VisitorCookie string `yaml:"visitor_cookie"`
	// FallbackURL is where the thank-you redirect sends visitors when the
	// link cannot be resolved. The redirect must always complete.
	FallbackURL string `env:"CONVERSIONS_FALLBACK_URL" yaml:"fallback_url"`
}

// ReconcileConfig holds reconciliation engine configuration.
type ReconcileConfig struct {
	// Window is the shared reconciliation window. It bounds the pending
	// webhook sweep delay and the waiting marker TTL; both sides must use
	// the same duration or attribution silently fails.
	Window time.Duration `env:"RECONCILE_WINDOW" yaml:"window"`
}

// RedisConfig holds attribution cache configuration.
type RedisConfig struct {
	Address  string `env:"REDIS_ADDRESS"  yaml:"address"`
	Password string `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int    `env:"REDIS_DB"       yaml:"db"`
}

// DatabaseConfig holds PostgreSQL configuration for the operator-visible
// webhook event log. The event log is optional; when disabled, records are
// dropped after being logged.
type DatabaseConfig struct {
	Enabled  bool   `env:"POSTGRES_CONVERSIONS_ENABLED"  yaml:"enabled"`
	Host     string `env:"POSTGRES_CONVERSIONS_HOST"     yaml:"host"`
	Port     int    `env:"POSTGRES_CONVERSIONS_PORT"     yaml:"port"`
	User     string `env:"POSTGRES_CONVERSIONS_USER"     yaml:"user"`
	Password string `env:"POSTGRES_CONVERSIONS_PASSWORD" yaml:"password"`
	Database string `env:"POSTGRES_CONVERSIONS_DB"       yaml:"database"`
	SSLMode  string `env:"POSTGRES_CONVERSIONS_SSLMODE"  yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// ClientConfig holds configuration for an external HTTP collaborator
// (click recorder, lead creation service).
type ClientConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// SchedulerConfig holds delayed job scheduler configuration.
type SchedulerConfig struct {
	// URL is the delayed-delivery queue endpoint. Empty selects the
	// in-process timer scheduler.
	URL   string `env:"SCHEDULER_URL"   yaml:"url"`
	Token string `env:"SCHEDULER_TOKEN" yaml:"token"`
	// CallbackURL is the publicly reachable sweep endpoint the queue
	// delivers jobs to.
	CallbackURL string `env:"SCHEDULER_CALLBACK_URL" yaml:"callback_url"`
	// Signing keys verify queue callbacks. NextSigningKey covers key
	// rotation windows.
	CurrentSigningKey string `env:"SCHEDULER_CURRENT_SIGNING_KEY" yaml:"current_signing_key"`
	NextSigningKey    string `env:"SCHEDULER_NEXT_SIGNING_KEY"    yaml:"next_signing_key"`
}

// ProvidersConfig holds per-provider webhook settings.
type ProvidersConfig struct {
	// Secrets maps provider name to its shared webhook secret. A provider
	// with no entry falls back to the workspace identifier as the HMAC key,
	// for third parties that cannot carry a per-integration secret.
	Secrets map[string]string `yaml:"secrets"`
}

// EventLogConfig tunes the buffered event log writer.
type EventLogConfig struct {
	BufferSize     int           `yaml:"buffer_size"`
	FlushInterval  time.Duration `yaml:"flush_interval"`
	FlushThreshold int           `yaml:"flush_threshold"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `env:"LOG_LEVEL" yaml:"level"`
}

// Load loads configuration from the specified path.
func Load(path string) (*Config, error) {
	return load(path, setDefaults)
}

func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	if cfg.Reconcile.Window == 0 {
		cfg.Reconcile.Window = defaultReconcileWindow
	}
	if cfg.Redis.Address == "" {
		cfg.Redis.Address = defaultRedisAddress
	}
	setDatabaseDefaults(&cfg.Database)
	setClientDefaults(&cfg.Clicks)
	setClientDefaults(&cfg.Leads)
	setEventLogDefaults(&cfg.EventLog)
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLoggingLevel
	}
}

func setServiceDefaults(svc *ServiceConfig) {
	if svc.Name == "" {
		svc.Name = defaultServiceName
	}
	if svc.Version == "" {
		svc.Version = defaultVersion
	}
	if svc.Port == 0 {
		svc.Port = defaultServicePort
	}
	if svc.VisitorCookie == "" {
		svc.VisitorCookie = defaultVisitorCookie
	}
}

func setDatabaseDefaults(db *DatabaseConfig) {
	if db.Host == "" {
		db.Host = defaultDBHost
	}
	if db.Port == 0 {
		db.Port = defaultDBPort
	}
	if db.User == "" {
		db.User = defaultDBUser
	}
	if db.Database == "" {
		db.Database = defaultDBName
	}
	if db.SSLMode == "" {
		db.SSLMode = defaultDBSSLMode
	}
}

func setClientDefaults(c *ClientConfig) {
	if c.Timeout == 0 {
		c.Timeout = defaultClientTimeout
	}
}

func setEventLogDefaults(e *EventLogConfig) {
	if e.BufferSize == 0 {
		e.BufferSize = defaultEventLogBufferSize
	}
	if e.FlushInterval == 0 {
		e.FlushInterval = defaultEventLogFlushInterval
	}
	if e.FlushThreshold == 0 {
		e.FlushThreshold = defaultEventLogFlushThreshold
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validatePort("service.port", c.Service.Port); err != nil {
		return err
	}
	if c.Reconcile.Window <= 0 {
		return &ValidationError{Field: "reconcile.window", Message: "must be positive"}
	}
	if err := validateRequired("redis.address", c.Redis.Address); err != nil {
		return err
	}
	if err := validateRequired("clicks.base_url", c.Clicks.BaseURL); err != nil {
		return err
	}
	if err := validateRequired("leads.base_url", c.Leads.BaseURL); err != nil {
		return err
	}
	if err := validateRequired("service.fallback_url", c.Service.FallbackURL); err != nil {
		return err
	}
	if c.Scheduler.URL != "" && c.Scheduler.CallbackURL == "" {
		return &ValidationError{Field: "scheduler.callback_url", Message: "is required when scheduler.url is set"}
	}
	return nil
}
