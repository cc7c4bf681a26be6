// Package config loads and validates the service configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the ORGSPACE_ prefix (e.g. ORGSPACE_DOCSTORE_BACKEND
// overrides docstore.backend in the YAML).
//
// JWT_SECRET has no ORGSPACE_ prefix because it is usually injected by secret
// managers that treat it as a generic secret name.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// EnvPrefix is the prefix for every bound environment variable.
const EnvPrefix = "ORGSPACE"

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	DocStore  DocStoreConfig  `mapstructure:"docstore"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Lock      LockConfig      `mapstructure:"lock"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Security  SecurityConfig  `mapstructure:"security"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DocStoreConfig selects and configures the tenant document store.
type DocStoreConfig struct {
	// Backend is "mongo" or "memory".
	Backend string      `mapstructure:"backend"`
	Mongo   MongoConfig `mapstructure:"mongo"`
}

// MongoConfig holds MongoDB connection settings
type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	MaxPoolSize    uint64        `mapstructure:"max_pool_size"`
}

// RegistryConfig selects where the organization catalog lives.
type RegistryConfig struct {
	// Backend is "docstore" (catalog stored in the document store's master
	// namespace) or "postgres".
	Backend string `mapstructure:"backend"`
	// MasterNamespace is the fixed, non-tenant namespace holding the catalog
	// when Backend is "docstore".
	MasterNamespace string `mapstructure:"master_namespace"`
}

// DatabaseConfig holds PostgreSQL connection configuration for the SQL registry
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// AuthConfig holds token and credential settings
type AuthConfig struct {
	JWTSecret                string `mapstructure:"jwt_secret"`
	JWTAlgorithm             string `mapstructure:"jwt_algorithm"`
	AccessTokenExpireMinutes int    `mapstructure:"access_token_expire_minutes"`
	Issuer                   string `mapstructure:"issuer"`
	BcryptCost               int    `mapstructure:"bcrypt_cost"`
}

// AccessTokenTTL returns the configured token lifetime.
func (a *AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenExpireMinutes) * time.Minute
}

// LockConfig configures per-organization mutual exclusion
type LockConfig struct {
	// Backend is "local" (single process) or "redis" (shared across replicas).
	Backend       string        `mapstructure:"backend"`
	TTL           time.Duration `mapstructure:"ttl"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	WaitTimeout   time.Duration `mapstructure:"wait_timeout"`
}

// RedisConfig holds the Redis connection used by the redis lock and rate limiter
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Backend is "memory" or "redis".
	Backend           string `mapstructure:"backend"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	Burst             int    `mapstructure:"burst"`
	// LoginPerMinute is the stricter limit applied to /admin/login per client IP.
	LoginPerMinute int `mapstructure:"login_per_minute"`
}

// TLSConfig holds TLS/HTTPS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// ArchiveConfig controls the namespace snapshot taken before an organization is deleted.
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Backend string `mapstructure:"backend"`
	Prefix  string `mapstructure:"prefix"`
	// EncryptionKey, when set, seals archives with AES-256-GCM. 32 bytes as hex or base64.
	EncryptionKey string `mapstructure:"encryption_key"`
	// Passphrase and Salt (hex, at least 16 bytes) derive the key when EncryptionKey is empty.
	Passphrase string `mapstructure:"passphrase"`
	Salt       string `mapstructure:"salt"`

	Azure AzureStorageConfig `mapstructure:"azure"`
	S3    S3StorageConfig    `mapstructure:"s3"`
	GCS   GCSStorageConfig   `mapstructure:"gcs"`
	Local LocalStorageConfig `mapstructure:"local"`
}

// AzureStorageConfig holds Azure Blob Storage configuration
type AzureStorageConfig struct {
	AccountName   string `mapstructure:"account_name"`
	AccountKey    string `mapstructure:"account_key"`
	ContainerName string `mapstructure:"container_name"`
}

// S3StorageConfig holds S3-compatible storage configuration
type S3StorageConfig struct {
	// Endpoint is optional, for MinIO and other S3-compatible services
	Endpoint string `mapstructure:"endpoint"`
	Region   string `mapstructure:"region"`
	Bucket   string `mapstructure:"bucket"`

	// AuthMethod is "default", "static", "oidc" or "assume_role"
	AuthMethod string `mapstructure:"auth_method"`

	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	RoleARN              string `mapstructure:"role_arn"`
	RoleSessionName      string `mapstructure:"role_session_name"`
	ExternalID           string `mapstructure:"external_id"`
	WebIdentityTokenFile string `mapstructure:"web_identity_token_file"`
}

// GCSStorageConfig holds Google Cloud Storage configuration
type GCSStorageConfig struct {
	Bucket    string `mapstructure:"bucket"`
	ProjectID string `mapstructure:"project_id"`

	// AuthMethod is "default", "service_account" or "workload_identity"
	AuthMethod      string `mapstructure:"auth_method"`
	CredentialsFile string `mapstructure:"credentials_file"`
	CredentialsJSON string `mapstructure:"credentials_json"`

	// Endpoint is an optional custom endpoint (GCS emulators)
	Endpoint string `mapstructure:"endpoint"`
}

// LocalStorageConfig holds local filesystem storage configuration
type LocalStorageConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// AuditConfig lists the external destinations for audit events. Audit events
// always go to the application log; sinks are additional copies.
type AuditConfig struct {
	Sinks []AuditSinkConfig `mapstructure:"sinks"`
}

// AuditSinkConfig configures one audit destination
type AuditSinkConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Type is "file" or "webhook"
	Type string `mapstructure:"type"`

	// File sink
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`

	// Webhook sink
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	Timeout time.Duration     `mapstructure:"timeout"`
	// BatchSize > 0 queues events and posts them as a JSON array.
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// AutomaticEnv() alone does not reach nested keys during Unmarshal.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.shutdown_timeout",

		// Document store
		"docstore.backend",
		"docstore.mongo.uri",
		"docstore.mongo.connect_timeout",
		"docstore.mongo.max_pool_size",

		// Registry
		"registry.backend",
		"registry.master_namespace",

		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Auth
		"auth.jwt_secret",
		"auth.jwt_algorithm",
		"auth.access_token_expire_minutes",
		"auth.issuer",
		"auth.bcrypt_cost",

		// Lock
		"lock.backend",
		"lock.ttl",
		"lock.retry_interval",
		"lock.wait_timeout",

		// Redis
		"redis.addr",
		"redis.password",
		"redis.db",

		// Security
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.backend",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.rate_limiting.login_per_minute",
		"security.tls.enabled",
		"security.tls.cert_file",
		"security.tls.key_file",

		// Archive
		"archive.enabled",
		"archive.backend",
		"archive.prefix",
		"archive.encryption_key",
		"archive.passphrase",
		"archive.salt",
		"archive.azure.account_name",
		"archive.azure.account_key",
		"archive.azure.container_name",
		"archive.s3.endpoint",
		"archive.s3.region",
		"archive.s3.bucket",
		"archive.s3.auth_method",
		"archive.s3.access_key_id",
		"archive.s3.secret_access_key",
		"archive.s3.role_arn",
		"archive.s3.role_session_name",
		"archive.s3.external_id",
		"archive.s3.web_identity_token_file",
		"archive.gcs.bucket",
		"archive.gcs.project_id",
		"archive.gcs.auth_method",
		"archive.gcs.credentials_file",
		"archive.gcs.credentials_json",
		"archive.gcs.endpoint",
		"archive.local.base_path",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.enabled",
		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	// Unprefixed alias; the prefixed variable wins when both are set.
	if err := v.BindEnv("auth.jwt_secret", EnvPrefix+"_AUTH_JWT_SECRET", "JWT_SECRET"); err != nil {
		return fmt.Errorf("failed to bind env var %q: %w", "auth.jwt_secret", err)
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand ${VAR} references in secrets
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)
	cfg.DocStore.Mongo.URI = expandEnv(cfg.DocStore.Mongo.URI)
	cfg.Auth.JWTSecret = expandEnv(cfg.Auth.JWTSecret)
	cfg.Archive.EncryptionKey = expandEnv(cfg.Archive.EncryptionKey)
	cfg.Archive.Passphrase = expandEnv(cfg.Archive.Passphrase)
	cfg.Archive.Azure.AccountKey = expandEnv(cfg.Archive.Azure.AccountKey)
	cfg.Archive.S3.AccessKeyID = expandEnv(cfg.Archive.S3.AccessKeyID)
	cfg.Archive.S3.SecretAccessKey = expandEnv(cfg.Archive.S3.SecretAccessKey)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// newViper reads defaults, the config file (when one is found) and the
// environment into a fresh Viper instance.
func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/orgspace")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment only
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

// WatchLogging calls apply with logging.level each time the config file is
// written, for as long as the process runs. It is the only setting reloaded at
// runtime; the rest is bound into components at startup. Invalid levels are
// logged and ignored. Without a config file there is nothing to watch.
func WatchLogging(configPath string, apply func(level string)) error {
	v, err := newViper(configPath)
	if err != nil {
		return err
	}
	if v.ConfigFileUsed() == "" {
		return nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		lvl := v.GetString("logging.level")
		if !validLogLevels[lvl] {
			slog.Warn("ignoring invalid logging.level from config reload", "level", lvl, "file", e.Name)
			return
		}
		apply(lvl)
	})
	v.WatchConfig()
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Document store defaults
	v.SetDefault("docstore.backend", "mongo")
	v.SetDefault("docstore.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("docstore.mongo.connect_timeout", "10s")
	v.SetDefault("docstore.mongo.max_pool_size", 100)

	// Registry defaults
	v.SetDefault("registry.backend", "docstore")
	v.SetDefault("registry.master_namespace", "master_db")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "orgspace")
	v.SetDefault("database.user", "orgspace")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Auth defaults
	v.SetDefault("auth.jwt_algorithm", "HS256")
	v.SetDefault("auth.access_token_expire_minutes", 60)
	v.SetDefault("auth.issuer", "orgspace")
	v.SetDefault("auth.bcrypt_cost", 12)

	// Lock defaults
	v.SetDefault("lock.backend", "local")
	v.SetDefault("lock.ttl", "5m")
	v.SetDefault("lock.retry_interval", "100ms")
	v.SetDefault("lock.wait_timeout", "30s")

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.backend", "memory")
	v.SetDefault("security.rate_limiting.requests_per_minute", 60)
	v.SetDefault("security.rate_limiting.burst", 10)
	v.SetDefault("security.rate_limiting.login_per_minute", 10)
	v.SetDefault("security.tls.enabled", false)

	// Archive defaults
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.backend", "local")
	v.SetDefault("archive.prefix", "archives")
	v.SetDefault("archive.local.base_path", "./archives")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "orgspace")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.DocStore.Backend {
	case "mongo":
		if c.DocStore.Mongo.URI == "" {
			return fmt.Errorf("docstore.mongo.uri is required when using the mongo backend")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid docstore backend: %s (must be mongo or memory)", c.DocStore.Backend)
	}

	switch c.Registry.Backend {
	case "docstore":
		if c.Registry.MasterNamespace == "" {
			return fmt.Errorf("registry.master_namespace is required when using the docstore registry")
		}
		if strings.HasPrefix(c.Registry.MasterNamespace, "org_") {
			return fmt.Errorf("registry.master_namespace %q collides with the tenant namespace prefix", c.Registry.MasterNamespace)
		}
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required when using the postgres registry")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required when using the postgres registry")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required when using the postgres registry")
		}
	default:
		return fmt.Errorf("invalid registry backend: %s (must be docstore or postgres)", c.Registry.Backend)
	}

	validAlgorithms := map[string]bool{"HS256": true, "HS384": true, "HS512": true}
	if !validAlgorithms[c.Auth.JWTAlgorithm] {
		return fmt.Errorf("invalid auth.jwt_algorithm: %s (must be HS256, HS384, or HS512)", c.Auth.JWTAlgorithm)
	}
	if c.Auth.AccessTokenExpireMinutes < 1 {
		return fmt.Errorf("auth.access_token_expire_minutes must be positive")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("invalid auth.bcrypt_cost: %d (must be between 4 and 31)", c.Auth.BcryptCost)
	}

	switch c.Lock.Backend {
	case "local", "redis":
	default:
		return fmt.Errorf("invalid lock backend: %s (must be local or redis)", c.Lock.Backend)
	}
	if c.Lock.TTL <= 0 {
		return fmt.Errorf("lock.ttl must be positive")
	}

	if c.Security.RateLimiting.Enabled {
		switch c.Security.RateLimiting.Backend {
		case "memory", "redis":
		default:
			return fmt.Errorf("invalid rate limiting backend: %s (must be memory or redis)", c.Security.RateLimiting.Backend)
		}
	}

	if (c.Lock.Backend == "redis" || (c.Security.RateLimiting.Enabled && c.Security.RateLimiting.Backend == "redis")) && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when a redis-backed lock or rate limiter is configured")
	}

	if c.Archive.Enabled {
		if err := c.Archive.validate(); err != nil {
			return err
		}
	}

	for i, sink := range c.Audit.Sinks {
		if !sink.Enabled {
			continue
		}
		switch sink.Type {
		case "file":
			if sink.Path == "" {
				return fmt.Errorf("audit.sinks[%d].path is required for file sinks", i)
			}
		case "webhook":
			if sink.URL == "" {
				return fmt.Errorf("audit.sinks[%d].url is required for webhook sinks", i)
			}
		default:
			return fmt.Errorf("invalid audit sink type: %s (must be file or webhook)", sink.Type)
		}
	}

	if c.Security.TLS.Enabled {
		if c.Security.TLS.CertFile == "" {
			return fmt.Errorf("security.tls.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.key_file is required when TLS is enabled")
		}
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

func (a *ArchiveConfig) validate() error {
	if a.Passphrase != "" && a.EncryptionKey == "" && len(a.Salt) < 32 {
		return fmt.Errorf("archive.salt must be at least 16 bytes of hex when archive.passphrase is set")
	}

	switch a.Backend {
	case "azure":
		if a.Azure.AccountName == "" {
			return fmt.Errorf("archive.azure.account_name is required when using Azure backend")
		}
		if a.Azure.AccountKey == "" {
			return fmt.Errorf("archive.azure.account_key is required when using Azure backend")
		}
		if a.Azure.ContainerName == "" {
			return fmt.Errorf("archive.azure.container_name is required when using Azure backend")
		}
	case "s3":
		if a.S3.Bucket == "" {
			return fmt.Errorf("archive.s3.bucket is required when using S3 backend")
		}
		if a.S3.Region == "" {
			return fmt.Errorf("archive.s3.region is required when using S3 backend")
		}
	case "gcs":
		if a.GCS.Bucket == "" {
			return fmt.Errorf("archive.gcs.bucket is required when using GCS backend")
		}
	case "local":
		if a.Local.BasePath == "" {
			return fmt.Errorf("archive.local.base_path is required when using local backend")
		}
	default:
		return fmt.Errorf("invalid archive backend: %s (must be azure, s3, gcs, or local)", a.Backend)
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
