package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Tasks    TasksConfig    `mapstructure:"tasks" validate:"required"`
	Log      LogConfig      `mapstructure:"log" validate:"required"`
	Snapshot SnapshotConfig `mapstructure:"snapshot" validate:"required"`
	HTTP     HTTPConfig     `mapstructure:"http" validate:"required"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// TasksConfig sizes the executor and sets cancellation behaviour.
type TasksConfig struct {
	WorkerCount int `mapstructure:"worker_count" validate:"required,gt=0,lte=256"`
	QueueSize   int `mapstructure:"queue_size" validate:"required,gt=0"`

	// InterruptOnCancel also cancels a running body's context on CancelTask
	InterruptOnCancel bool `mapstructure:"interrupt_on_cancel"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
}

// SnapshotConfig selects where the outstanding-id snapshot survives a
// consumer teardown.
type SnapshotConfig struct {
	Backend string `mapstructure:"backend" validate:"required,oneof=memory redis postgres sqlite"`

	// Scope keys the snapshot, one per consumer
	Scope string `mapstructure:"scope" validate:"required"`

	// TTL bounds how long a redis snapshot is kept; zero keeps it forever
	TTL time.Duration `mapstructure:"ttl" validate:"gte=0"`

	RedisAddr   string `mapstructure:"redis_addr" validate:"required_if=Backend redis"`
	DatabaseURL string `mapstructure:"database_url" validate:"required_if=Backend postgres"`
	SQLitePath  string `mapstructure:"sqlite_path" validate:"required_if=Backend sqlite"`
}

// HTTPConfig tunes the HTTP work bodies.
type HTTPConfig struct {
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gt=0"`
	Burst             int           `mapstructure:"burst" validate:"gte=1"`
	MaxRetries        uint64        `mapstructure:"max_retries" validate:"lte=10"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff" validate:"gte=0"`
}

// MetricsConfig controls the prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}
