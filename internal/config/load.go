package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. TASKGATE_LOG_LEVEL.
const EnvPrefix = "TASKGATE"

// NewViper returns a viper instance with defaults and environment binding set
// up. If configFile is empty, taskgate.yaml is looked up in the working
// directory and is optional.
func NewViper(configFile string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("taskgate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tasks.worker_count", 4)
	v.SetDefault("tasks.queue_size", 64)
	v.SetDefault("tasks.interrupt_on_cancel", true)

	v.SetDefault("log.level", "info")

	v.SetDefault("snapshot.backend", "memory")
	v.SetDefault("snapshot.scope", "default")
	v.SetDefault("snapshot.ttl", 24*time.Hour)
	// keys without a real default still need registering for AutomaticEnv to
	// reach them during Unmarshal
	v.SetDefault("snapshot.redis_addr", "")
	v.SetDefault("snapshot.database_url", "")
	v.SetDefault("snapshot.sqlite_path", "")

	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.requests_per_second", 5.0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.retry_backoff", 200*time.Millisecond)

	v.SetDefault("metrics.addr", "")
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return LoadFrom(NewViper(""))
}

// LoadFrom reads, unmarshals and validates configuration from v. Callers use
// it to bind command-line flags into v first.
func LoadFrom(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
