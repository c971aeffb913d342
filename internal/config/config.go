// Package config loads gateway and CLI settings from the environment and an
// optional config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Rewrite providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Quota backends. The empty value keeps counters in the session store.
const (
	QuotaBackendStore = "store"
	QuotaBackendRedis = "redis"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	StoreDriver string `mapstructure:"store_driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	StateTable  string `mapstructure:"state_table"`

	QuotaBackend string `mapstructure:"quota_backend"`
	RedisAddr    string `mapstructure:"redis_addr"`
	DailyLimit   int    `mapstructure:"daily_limit"`
	// SessionTimeoutMS is the idle window in milliseconds.
	SessionTimeoutMS int64 `mapstructure:"session_timeout"`

	RewriteProvider   string `mapstructure:"rewrite_provider"`
	GeminiAPIEndpoint string `mapstructure:"gemini_api_endpoint"`
	GeminiAPIKey      string `mapstructure:"gemini_api_key"`
	OpenAIBaseURL     string `mapstructure:"openai_base_url"`
	OpenAIModel       string `mapstructure:"openai_model"`
	OpenAIAPIKey      string `mapstructure:"openai_api_key"`
	// ParamPrefix, when set, makes API keys come from SSM Parameter Store.
	ParamPrefix string `mapstructure:"param_prefix"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`

	GatewayURL string `mapstructure:"gateway_url"`
	StatePath  string `mapstructure:"state_path"`
}

var keys = []string{
	"store_driver", "sqlite_path", "postgres_dsn", "state_table",
	"quota_backend", "redis_addr", "daily_limit", "session_timeout",
	"rewrite_provider", "gemini_api_endpoint", "gemini_api_key",
	"openai_base_url", "openai_model", "openai_api_key", "param_prefix",
	"host", "port", "log_level", "gateway_url", "state_path",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store_driver", "sqlite")
	v.SetDefault("sqlite_path", "draft-polisher.db")
	v.SetDefault("quota_backend", QuotaBackendStore)
	v.SetDefault("daily_limit", 50)
	v.SetDefault("session_timeout", int64(24*time.Hour/time.Millisecond))
	v.SetDefault("rewrite_provider", ProviderGemini)
	v.SetDefault("host", "localhost")
	v.SetDefault("port", 3000)
	v.SetDefault("log_level", "info")
	v.SetDefault("gateway_url", "http://localhost:3000")
}

// Load reads the environment, overlaid on path when path is non-empty. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	for _, k := range keys {
		if err := v.BindEnv(k, strings.ToUpper(k)); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", k, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.QuotaBackend = strings.ToLower(strings.TrimSpace(cfg.QuotaBackend))
	cfg.RewriteProvider = strings.ToLower(strings.TrimSpace(cfg.RewriteProvider))
	return cfg, nil
}

func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutMS) * time.Millisecond
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks the settings the gateway needs to start.
func (c *Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case "memory":
	case "sqlite":
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	case "postgres":
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres driver"))
		}
	case "dynamodb":
		if c.StateTable == "" {
			errs = append(errs, errors.New("STATE_TABLE is required for the dynamodb driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	switch c.QuotaBackend {
	case "", QuotaBackendStore:
	case QuotaBackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis quota backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown QUOTA_BACKEND %q", c.QuotaBackend))
	}

	if c.DailyLimit <= 0 {
		errs = append(errs, errors.New("DAILY_LIMIT must be positive"))
	}
	if c.SessionTimeoutMS <= 0 {
		errs = append(errs, errors.New("SESSION_TIMEOUT must be positive"))
	}

	switch c.RewriteProvider {
	case ProviderGemini:
		if c.ParamPrefix == "" && c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY or PARAM_PREFIX is required"))
		}
	case ProviderOpenAI:
		if c.ParamPrefix == "" && c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY or PARAM_PREFIX is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown REWRITE_PROVIDER %q", c.RewriteProvider))
	}

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
