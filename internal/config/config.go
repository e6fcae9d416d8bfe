package config

import (
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Service    ServiceConfig    `mapstructure:"service"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Exchanges  ExchangesConfig  `mapstructure:"exchanges"`
	Database   DatabaseConfig   `mapstructure:"database"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
}

type ServiceConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

type MetricsConfig struct {
	Port int    `mapstructure:"port"`
	Path string `mapstructure:"path"`
}

// ExchangesConfig carries per-exchange overrides. Every field has a
// code-level default so an empty config file is a valid config.
type ExchangesConfig struct {
	Binance     ExchangeEndpointConfig `mapstructure:"binance"`
	Bybit       ExchangeEndpointConfig `mapstructure:"bybit"`
	Blofin      ExchangeEndpointConfig `mapstructure:"blofin"`
	Hyperliquid ExchangeEndpointConfig `mapstructure:"hyperliquid"`
}

type ExchangeEndpointConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	RequestDelay     time.Duration `mapstructure:"request_delay"`
	HTTPTimeout      time.Duration `mapstructure:"http_timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	DefaultLeverage  decimal.Decimal `mapstructure:"default_leverage"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	PasswordEnv    string `mapstructure:"password_env"`
	MaxConnections int    `mapstructure:"max_connections"`
	SSLMode        string `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
}

type PubSubConfig struct {
	NATS   NATSConfig   `mapstructure:"nats"`
	Topics TopicsConfig `mapstructure:"topics"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

type TopicsConfig struct {
	SyncCompleted string `mapstructure:"sync_completed"`
	SyncFailed    string `mapstructure:"sync_failed"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	MisfireGrace  time.Duration `mapstructure:"misfire_grace"`
}

type ResilienceConfig struct {
	CircuitBreakerFailureThreshold uint32        `mapstructure:"circuit_breaker_failure_threshold"`
	CircuitBreakerTimeout          time.Duration `mapstructure:"circuit_breaker_timeout"`
	RetryMaxElapsed                time.Duration `mapstructure:"retry_max_elapsed"`
}

// CredentialsConfig holds the symmetric key used to decrypt stored exchange
// secrets. EncryptionKeyEnv names the environment variable; its absence is
// fatal at process boot (see cmd/syncengine/main.go).
type CredentialsConfig struct {
	EncryptionKeyEnv string `mapstructure:"encryption_key_env"`
	EncryptionKey    string `mapstructure:"-"`
}

func stringToDecimalHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf(decimal.Decimal{}) {
			return data, nil
		}
		if f.Kind() != reflect.String {
			return data, nil
		}
		strVal := data.(string)
		decVal, err := decimal.NewFromString(strVal)
		if err != nil {
			return nil, fmt.Errorf("failed to parse decimal from string '%s': %w", strVal, err)
		}
		return decVal, nil
	}
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config

	decoderConfig := &mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			stringToDecimalHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		Result:           &cfg,
		WeaklyTypedInput: true,
	}

	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(viper.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Database.Postgres.PasswordEnv != "" {
		if password := os.Getenv(cfg.Database.Postgres.PasswordEnv); password != "" {
			cfg.Database.Postgres.Password = password
		}
	}

	setDefaults(&cfg)

	if cfg.Credentials.EncryptionKeyEnv == "" {
		cfg.Credentials.EncryptionKeyEnv = "ENCRYPTION_KEY"
	}
	cfg.Credentials.EncryptionKey = os.Getenv(cfg.Credentials.EncryptionKeyEnv)

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "syncengine"
	}
	if cfg.Service.Version == "" {
		cfg.Service.Version = "1.0.0"
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9094
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	defaultEndpoint := func(e *ExchangeEndpointConfig, baseURL string, defaultLeverage string) {
		if e.BaseURL == "" {
			e.BaseURL = baseURL
		}
		if e.RequestDelay == 0 {
			e.RequestDelay = 200 * time.Millisecond
		}
		if e.HTTPTimeout == 0 {
			e.HTTPTimeout = 20 * time.Second
		}
		if e.MaxRetries == 0 {
			e.MaxRetries = 3
		}
		if e.DefaultLeverage.IsZero() {
			e.DefaultLeverage = decimal.RequireFromString(defaultLeverage)
		}
	}
	defaultEndpoint(&cfg.Exchanges.Binance, "https://fapi.binance.com", "1")
	defaultEndpoint(&cfg.Exchanges.Bybit, "https://api.bybit.com", "1")
	defaultEndpoint(&cfg.Exchanges.Blofin, "https://openapi.blofin.com", "1")
	defaultEndpoint(&cfg.Exchanges.Hyperliquid, "https://api.hyperliquid.xyz", "10")

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 10
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Redis.Port == 0 {
		cfg.Database.Redis.Port = 6379
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.PubSub.NATS.MaxReconnects == 0 {
		cfg.PubSub.NATS.MaxReconnects = 10
	}
	if cfg.PubSub.NATS.ReconnectWait == 0 {
		cfg.PubSub.NATS.ReconnectWait = 2 * time.Second
	}
	if cfg.PubSub.Topics.SyncCompleted == "" {
		cfg.PubSub.Topics.SyncCompleted = "sync.completed"
	}
	if cfg.PubSub.Topics.SyncFailed == "" {
		cfg.PubSub.Topics.SyncFailed = "sync.failed"
	}
	if cfg.Scheduler.Interval == 0 {
		cfg.Scheduler.Interval = 24 * time.Hour
	}
	if cfg.Scheduler.MisfireGrace == 0 {
		cfg.Scheduler.MisfireGrace = time.Hour
	}
	if cfg.Resilience.CircuitBreakerFailureThreshold == 0 {
		cfg.Resilience.CircuitBreakerFailureThreshold = 5
	}
	if cfg.Resilience.CircuitBreakerTimeout == 0 {
		cfg.Resilience.CircuitBreakerTimeout = 30 * time.Second
	}
	if cfg.Resilience.RetryMaxElapsed == 0 {
		cfg.Resilience.RetryMaxElapsed = 10 * time.Second
	}
}
