package config

import (
	"context"
	"time"
)

// Client kinds accepted by client.default and by model metadata.
const (
	ClientREST = "rest"
	ClientGRPC = "grpc"
)

// Cache drivers accepted by cache.driver.
const (
	CacheDriverMemory = "memory"
	CacheDriverRedis  = "redis"
)

// Config represents the complete configuration consumed by the remote query layer.
// It provides type-safe access to all configuration values with validation.
type Config struct {
	Client  ClientConfig  `koanf:"client"`
	REST    RESTConfig    `koanf:"rest"`
	GRPC    GRPCConfig    `koanf:"grpc"`
	OAuth   OAuthConfig   `koanf:"oauth"`
	Cache   CacheConfig   `koanf:"cache"`
	Redis   RedisConfig   `koanf:"redis"`
	Logging LoggingConfig `koanf:"logging"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// ClientConfig selects the transport used when a model does not pin one.
type ClientConfig struct {
	Default string `koanf:"default" validate:"oneof=rest grpc" env:"REMOTEQ_DEFAULT_CLIENT"`
}

// RESTConfig contains the REST transport configuration.
type RESTConfig struct {
	BaseURL    string            `koanf:"base_url"    env:"REMOTEQ_REST_BASE_URL"`
	Headers    map[string]string `koanf:"headers"`
	Timeout    time.Duration     `koanf:"timeout"     env:"REMOTEQ_REST_TIMEOUT"     validate:"min=0"`
	OAuth      bool              `koanf:"oauth"       env:"REMOTEQ_REST_OAUTH"`
	RetryCount int               `koanf:"retry_count" env:"REMOTEQ_REST_RETRY_COUNT" validate:"min=0,max=10"`
	Debug      bool              `koanf:"debug"       env:"REMOTEQ_REST_DEBUG"`
}

// GRPCConfig contains the gRPC transport configuration.
type GRPCConfig struct {
	ServerAddress string            `koanf:"server_address" validate:"required"     env:"REMOTEQ_GRPC_SERVER_ADDRESS"`
	ServiceName   string            `koanf:"service_name"   validate:"required"     env:"REMOTEQ_GRPC_SERVICE_NAME"`
	Timeout       time.Duration     `koanf:"timeout"        validate:"min=0"        env:"REMOTEQ_GRPC_TIMEOUT"`
	RetryAttempts int               `koanf:"retry_attempts" validate:"min=0,max=10" env:"REMOTEQ_GRPC_RETRY_ATTEMPTS"`
	StrictFields  bool              `koanf:"strict_fields"                          env:"REMOTEQ_GRPC_STRICT_FIELDS"`
	Credentials   CredentialsConfig `koanf:"credentials"`
}

// CredentialsConfig selects the channel credentials of the gRPC transport.
type CredentialsConfig struct {
	Type     string `koanf:"type"      validate:"oneof=insecure tls" env:"REMOTEQ_GRPC_CREDENTIALS_TYPE"`
	CertPath string `koanf:"cert_path"                               env:"REMOTEQ_GRPC_CERT_PATH"`
	KeyPath  string `koanf:"key_path"                                env:"REMOTEQ_GRPC_KEY_PATH"`
	CAPath   string `koanf:"ca_path"                                 env:"REMOTEQ_GRPC_CA_PATH"`
}

// OAuthConfig contains the client-credentials settings used when rest.oauth is on.
type OAuthConfig struct {
	BaseURL      string          `koanf:"base_url"      env:"REMOTEQ_OAUTH_BASE_URL"`
	ClientID     string          `koanf:"client_id"     env:"REMOTEQ_OAUTH_CLIENT_ID"`
	ClientSecret SensitiveString `koanf:"client_secret" env:"REMOTEQ_OAUTH_CLIENT_SECRET" sensitive:"true"`
	Scope        string          `koanf:"scope"         env:"REMOTEQ_OAUTH_SCOPE"`
	TokenPath    string          `koanf:"token_path"    env:"REMOTEQ_OAUTH_TOKEN_PATH"`
	TokenTTL     time.Duration   `koanf:"token_ttl"     env:"REMOTEQ_OAUTH_TOKEN_TTL"     validate:"min=0"`
}

// CacheConfig controls GET response caching and the backing store.
type CacheConfig struct {
	Enabled           bool          `koanf:"enabled"             env:"REMOTEQ_CACHE_ENABLED"`
	Driver            string        `koanf:"driver"              env:"REMOTEQ_CACHE_DRIVER"              validate:"oneof=memory redis"`
	ResponseTTL       time.Duration `koanf:"response_ttl"        env:"REMOTEQ_CACHE_RESPONSE_TTL"        validate:"min=0"`
	InvalidateOnWrite bool          `koanf:"invalidate_on_write" env:"REMOTEQ_CACHE_INVALIDATE_ON_WRITE"`
	MaxCost           int64         `koanf:"max_cost"            env:"REMOTEQ_CACHE_MAX_COST"            validate:"min=1"`
}

// RedisConfig contains Redis connection settings for the redis cache driver.
type RedisConfig struct {
	URL         string          `koanf:"url"          env:"REMOTEQ_REDIS_URL"`
	Host        string          `koanf:"host"         env:"REMOTEQ_REDIS_HOST"`
	Port        string          `koanf:"port"         env:"REMOTEQ_REDIS_PORT"`
	Password    SensitiveString `koanf:"password"     env:"REMOTEQ_REDIS_PASSWORD"     sensitive:"true"`
	DB          int             `koanf:"db"           env:"REMOTEQ_REDIS_DB"           validate:"min=0"`
	PoolSize    int             `koanf:"pool_size"    env:"REMOTEQ_REDIS_POOL_SIZE"    validate:"min=0"`
	PingTimeout time.Duration   `koanf:"ping_timeout" env:"REMOTEQ_REDIS_PING_TIMEOUT"`

	TLSEnabled   bool          `koanf:"tls_enabled"   env:"REMOTEQ_REDIS_TLS_ENABLED"`
	DialTimeout  time.Duration `koanf:"dial_timeout"  env:"REMOTEQ_REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `koanf:"read_timeout"  env:"REMOTEQ_REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `koanf:"write_timeout" env:"REMOTEQ_REDIS_WRITE_TIMEOUT"`
	MaxRetries   int           `koanf:"max_retries"   env:"REMOTEQ_REDIS_MAX_RETRIES"   validate:"min=0"`
}

// LoggingConfig toggles request logging.
type LoggingConfig struct {
	Enabled bool   `koanf:"enabled" env:"REMOTEQ_LOGGING_ENABLED"`
	Level   string `koanf:"level"   env:"REMOTEQ_LOGGING_LEVEL"   validate:"oneof=debug info warn error"`
	JSON    bool   `koanf:"json"    env:"REMOTEQ_LOGGING_JSON"`
}

// MetricsConfig toggles Prometheus instrumentation of transports.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"   env:"REMOTEQ_METRICS_ENABLED"`
	Namespace string `koanf:"namespace" env:"REMOTEQ_METRICS_NAMESPACE"`
}

// Service defines the configuration management service interface.
type Service interface {
	// Load loads configuration from the specified sources with precedence order.
	Load(ctx context.Context, sources ...Source) (*Config, error)
	// Validate checks if the configuration meets all validation requirements.
	Validate(config *Config) error
	// GetSource returns the source type for a specific configuration key.
	GetSource(key string) SourceType
}

// Source defines the interface for configuration sources.
type Source interface {
	// Load reads configuration from the source.
	Load() (map[string]any, error)
	// Type returns the source type identifier.
	Type() SourceType
}

// SourceType identifies the type of configuration source.
type SourceType string

const (
	SourceCLI     SourceType = "cli"
	SourceEnv     SourceType = "env"
	SourceMap     SourceType = "map"
	SourceDefault SourceType = "default"
)

// Metadata contains metadata about configuration sources.
type Metadata struct {
	Sources  map[string]SourceType `json:"sources"`
	LoadedAt time.Time             `json:"loaded_at"`
}

// Load loads configuration using the default service.
func Load(ctx context.Context, sources ...Source) (*Config, error) {
	return NewService().Load(ctx, sources...)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Client: ClientConfig{Default: ClientREST},
		REST: RESTConfig{
			Headers: map[string]string{},
			Timeout: 30 * time.Second,
		},
		GRPC: GRPCConfig{
			ServerAddress: "localhost:50051",
			ServiceName:   "eloquent.query.RemoteEloquentService",
			Timeout:       30 * time.Second,
			Credentials:   CredentialsConfig{Type: "insecure"},
		},
		OAuth: OAuthConfig{
			Scope:     "*",
			TokenPath: "/oauth/token",
			TokenTTL:  3500 * time.Second,
		},
		Cache: CacheConfig{
			Driver:      CacheDriverMemory,
			ResponseTTL: 3600 * time.Second,
			MaxCost:     64 << 20,
		},
		Redis: RedisConfig{
			Host:        "localhost",
			Port:        "6379",
			PingTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{Level: "info"},
		Metrics: MetricsConfig{Namespace: "remoteq"},
	}
}
