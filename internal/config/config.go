// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Logging    LoggingConfig
	Mappings   MappingsConfig
	Blacklist  BlacklistConfig
	SmartMatch SmartMatchConfig
	Review     ReviewConfig
	Batch      BatchConfig
	Telegram   TelegramConfig
	Tencent    TencentConfig
	AMQP       AMQPConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

// DatabaseConfig contains database connection configuration.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type DatabaseConfig struct {
	Host           string
	Name           string
	User           string
	Password       string
	SSLMode        string
	Port           int
	MaxConnections int
	MinConnections int
	MaxIdleTime    time.Duration
	MaxLifetime    time.Duration
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string
	File  string
}

// MappingRule is an ordered source-prefix to target-prefix pair.
type MappingRule struct {
	Source string
	Target string
}

// MappingsConfig carries the three prefix mapping tables used by the path
// resolver, in pipeline order: container path to host path, strm file content
// to mount point, host path to CDN URL.
type MappingsConfig struct {
	Container   []MappingRule
	StrmContent []MappingRule
	CDN         []MappingRule
}

// BlacklistConfig lists path prefixes that are never resolved.
type BlacklistConfig struct {
	Paths []string
}

// SmartMatchConfig configures the keyword fallback used when no CDN mapping
// rule matches a host path.
type SmartMatchConfig struct {
	Enabled  bool
	Keywords []string
	CDNBase  string
}

// ReviewConfig controls the human review gate.
//
// TimeoutSeconds is recognized but not enforced as an auto-reject sweep; it
// is reported at startup so operators know pending requests do not expire.
type ReviewConfig struct {
	Enabled               bool
	AutoApproveIfDisabled bool
	TimeoutSeconds        int
}

// BatchConfig controls the notification dispatcher's flush behavior.
type BatchConfig struct {
	FlushInterval      time.Duration
	MaxBatchSize       int
	MaxItemsPerMessage int
	SendDelay          time.Duration
}

// TelegramConfig contains the reviewer notification channel credentials.
type TelegramConfig struct {
	BotToken     string
	AdminChatIDs []string
}

// TencentConfig contains Tencent Cloud CDN credentials.
type TencentConfig struct {
	SecretID  string
	SecretKey string
	Region    string
	Enabled   bool
}

// AMQPConfig contains the optional event mirror broker configuration. The
// mirror is disabled when Host is empty.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type AMQPConfig struct {
	Host       string
	User       string
	Password   string
	Exchange   string
	Queue      string
	RoutingKey string
	Port       int
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("APP")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Batch.MaxBatchSize <= 0 {
		return fmt.Errorf("batch.maxbatchsize must be positive, got %d", c.Batch.MaxBatchSize)
	}
	if c.Batch.MaxItemsPerMessage <= 0 {
		return fmt.Errorf("batch.maxitemspermessage must be positive, got %d", c.Batch.MaxItemsPerMessage)
	}
	if c.Batch.FlushInterval <= 0 {
		return fmt.Errorf("batch.flushinterval must be positive, got %s", c.Batch.FlushInterval)
	}
	if c.SmartMatch.Enabled && c.SmartMatch.CDNBase == "" {
		return fmt.Errorf("smartmatch.cdnbase is required when smart matching is enabled")
	}
	return nil
}

func setDefaults() {
	// Server
	viper.SetDefault("server.port", 8899)
	viper.SetDefault("server.shutdowntimeout", 30*time.Second)

	// Database
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "preheat_review")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.maxconnections", 10)
	viper.SetDefault("database.minconnections", 2)
	viper.SetDefault("database.maxidletime", 10*time.Minute)
	viper.SetDefault("database.maxlifetime", 1*time.Hour)

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file", "")

	// Review
	viper.SetDefault("review.enabled", true)
	viper.SetDefault("review.autoapproveifdisabled", false)
	viper.SetDefault("review.timeoutseconds", 0)

	// Batch
	viper.SetDefault("batch.flushinterval", 30*time.Second)
	viper.SetDefault("batch.maxbatchsize", 10)
	viper.SetDefault("batch.maxitemspermessage", 5)
	viper.SetDefault("batch.senddelay", 1*time.Second)

	// Smart match
	viper.SetDefault("smartmatch.enabled", false)

	// Tencent CDN
	viper.SetDefault("tencent.enabled", false)
	viper.SetDefault("tencent.region", "")

	// AMQP event mirror
	viper.SetDefault("amqp.host", "")
	viper.SetDefault("amqp.port", 5672)
	viper.SetDefault("amqp.user", "guest")
	viper.SetDefault("amqp.password", "guest")
	viper.SetDefault("amqp.exchange", "preheat.events")
	viper.SetDefault("amqp.queue", "preheat.events.mirror")
	viper.SetDefault("amqp.routingkey", "request.event")
}
