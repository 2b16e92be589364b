package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	Backend  BackendConfig
	Retry    RetryConfig
	Storage  StorageConfig
	Redis    RedisConfig
	DB       DBConfig
	Tracker  TrackerConfig
	Health   HealthConfig
	Checkout CheckoutConfig
	Security SecurityConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Backend.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Storage.validate(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"STOREFRONT_APP_ENV" default:"dev"`
	Port         string   `envconfig:"STOREFRONT_APP_PORT" default:"8085"`
	LogLevel     string   `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`
	LogWarnStack bool     `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"STOREFRONT_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// BackendConfig points at the food-ordering REST API.
type BackendConfig struct {
	BaseURL        string        `envconfig:"STOREFRONT_BACKEND_URL" required:"true"`
	RequestTimeout time.Duration `envconfig:"STOREFRONT_BACKEND_REQUEST_TIMEOUT" default:"15s"`
}

func (b BackendConfig) validate() error {
	parsed, err := url.Parse(strings.TrimSpace(b.BaseURL))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", EnvBackendURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) url", EnvBackendURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", EnvBackendURL)
	}
	return nil
}

// RetryConfig is the shared backoff policy applied to outbound HTTP calls.
type RetryConfig struct {
	MaxAttempts int           `envconfig:"STOREFRONT_RETRY_MAX_ATTEMPTS" default:"3"`
	BaseDelay   time.Duration `envconfig:"STOREFRONT_RETRY_BASE_DELAY" default:"500ms"`
	MaxDelay    time.Duration `envconfig:"STOREFRONT_RETRY_MAX_DELAY" default:"8s"`
}

type StorageConfig struct {
	// Driver selects the key-value backend: memory, redis or sql.
	Driver string `envconfig:"STOREFRONT_STORAGE_DRIVER" default:"sql"`
}

func (s StorageConfig) validate(cfg Config) error {
	switch s.Kind() {
	case StorageMemory:
		return nil
	case StorageRedis:
		if cfg.Redis.URL == "" && cfg.Redis.Address == "" {
			return fmt.Errorf("%s or %s is required for the redis storage driver", EnvRedisURL, EnvRedisAddr)
		}
		return nil
	case StorageSQL:
		if cfg.DB.DSN == "" {
			return fmt.Errorf("%s is required for the sql storage driver", EnvDBDSN)
		}
		return nil
	}
	return fmt.Errorf("unsupported %s %q", EnvStorageDriver, s.Driver)
}

// Kind returns the normalized storage driver name.
func (s StorageConfig) Kind() string {
	return strings.ToLower(strings.TrimSpace(s.Driver))
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"4"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"1"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"3s"`
}

type DBConfig struct {
	// Driver is sqlite (embedded file) or postgres.
	Driver          string        `envconfig:"STOREFRONT_DB_DRIVER" default:"sqlite"`
	DSN             string        `envconfig:"STOREFRONT_DB_DSN" default:"storefront.db"`
	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"4"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	AutoMigrate     bool          `envconfig:"STOREFRONT_DB_AUTO_MIGRATE" default:"true"`
}

// IsPostgres reports whether the SQL store runs on postgres.
func (d DBConfig) IsPostgres() bool {
	return strings.EqualFold(strings.TrimSpace(d.Driver), DBDriverPostgres)
}

type TrackerConfig struct {
	RefreshInterval time.Duration `envconfig:"STOREFRONT_TRACKER_REFRESH_INTERVAL" default:"30s"`
	AutoRefresh     bool          `envconfig:"STOREFRONT_TRACKER_AUTO_REFRESH" default:"true"`
	EventBuffer     int           `envconfig:"STOREFRONT_TRACKER_EVENT_BUFFER" default:"16"`
}

type HealthConfig struct {
	ProbeInterval time.Duration `envconfig:"STOREFRONT_HEALTH_PROBE_INTERVAL" default:"10s"`
	ProbeTimeout  time.Duration `envconfig:"STOREFRONT_HEALTH_PROBE_TIMEOUT" default:"5s"`
}

type CheckoutConfig struct {
	// RetryCreate allows order creation to be retried with an idempotency key.
	RetryCreate       bool   `envconfig:"STOREFRONT_ORDERS_RETRY_CREATE" default:"false"`
	MpesaPaybill      string `envconfig:"STOREFRONT_MPESA_PAYBILL"`
	MpesaAccountLabel string `envconfig:"STOREFRONT_MPESA_ACCOUNT_LABEL" default:"order number"`
}

type SecurityConfig struct {
	// PhoneHashKey keys the fingerprint used in logs instead of raw phone numbers.
	PhoneHashKey string `envconfig:"STOREFRONT_PHONE_HASH_KEY"`
}
