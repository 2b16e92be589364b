package config

const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageSQL    = "sql"

	DBDriverSQLite   = "sqlite"
	DBDriverPostgres = "postgres"
)

const (
	EnvAppEnv        = "STOREFRONT_APP_ENV"
	EnvPort          = "STOREFRONT_APP_PORT"
	EnvLogLevel      = "STOREFRONT_LOG_LEVEL"
	EnvBackendURL    = "STOREFRONT_BACKEND_URL"
	EnvStorageDriver = "STOREFRONT_STORAGE_DRIVER"
	EnvRedisURL      = "STOREFRONT_REDIS_URL"
	EnvRedisAddr     = "STOREFRONT_REDIS_ADDR"
	EnvDBDriver      = "STOREFRONT_DB_DRIVER"
	EnvDBDSN         = "STOREFRONT_DB_DSN"
	EnvRetryAttempts = "STOREFRONT_RETRY_MAX_ATTEMPTS"
	EnvRefreshEvery  = "STOREFRONT_TRACKER_REFRESH_INTERVAL"
	EnvRetryCreate   = "STOREFRONT_ORDERS_RETRY_CREATE"
)
