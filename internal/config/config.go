package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DatabaseConfig selects the journal backend. Driver is "mysql" or "sqlite";
// Path applies to sqlite, the host fields to mysql.
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Path         string `mapstructure:"path"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	TransferCompleted string `mapstructure:"transfer_completed"`
}

type BusinessConfig struct {
	// WorldID scopes lazily created player accounts and the world account.
	WorldID int64 `mapstructure:"world_id"`
	// StartingMoney is granted from the world account to each freshly created
	// player account, in money grammar ("1p50c"). "0" disables the grant.
	StartingMoney string `mapstructure:"starting_money"`
	// SquashIntervalMinutes drives the periodic journal compaction job.
	// Zero disables scheduled squashing.
	SquashIntervalMinutes int `mapstructure:"squash_interval_minutes"`
	// CommitTimeoutSeconds bounds the wait for the ledger-wide commit section.
	CommitTimeoutSeconds int `mapstructure:"commit_timeout_seconds"`
	// MaxRetryCount caps outbox publish retries before a message is parked.
	MaxRetryCount int `mapstructure:"max_retry_count"`
	// PurgeOnLoad removes orphaned and zero-balance accounts after loading.
	PurgeOnLoad bool `mapstructure:"purge_on_load"`
}

// LoadConfig reads and parses the yaml configuration file.
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("failed to read config file: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("failed to parse config file: %v", err)
	}

	return config
}
