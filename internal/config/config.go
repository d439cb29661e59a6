// internal/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

type HTTPConfig struct {
	Address      string `mapstructure:"address"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout int    `mapstructure:"write_timeout"` // milliseconds
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
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
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig configures the reporting cache. An empty address disables it.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	StatsTTL int    `mapstructure:"stats_ttl"` // milliseconds
}

type QueueConfig struct {
	Driver              string `mapstructure:"driver"` // amqp or memory
	URL                 string `mapstructure:"url"`
	DispatchTopic       string `mapstructure:"dispatch_topic"`
	EndpointEventsTopic string `mapstructure:"endpoint_events_topic"`
}

type GatewayConfig struct {
	Provider string `mapstructure:"provider"` // sns, fcm or log
	Timeout  int    `mapstructure:"timeout"`  // milliseconds
	AWS      struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
	FCM struct {
		Endpoint  string `mapstructure:"endpoint"`
		ServerKey string `mapstructure:"server_key"`
	} `mapstructure:"fcm"`
}

type DispatchConfig struct {
	Workers            int    `mapstructure:"workers"`
	RatePerSec         int    `mapstructure:"rate_per_sec"`
	MaxAttempts        int    `mapstructure:"max_attempts"`
	RetryBackoff       int    `mapstructure:"retry_backoff"`       // milliseconds
	CheckpointInterval int    `mapstructure:"checkpoint_interval"` // milliseconds
	StaleAfter         int    `mapstructure:"stale_after"`         // milliseconds
	RecoverySchedule   string `mapstructure:"recovery_schedule"`
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
