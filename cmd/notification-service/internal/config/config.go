// Package config provides configuration management for the notification
// service. Settings come from environment variables (optionally a .env
// file) via viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the notification service.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Consumer ConsumerConfig `mapstructure:"consumer"`
	Sweeper  SweeperConfig  `mapstructure:"sweeper"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds the operator HTTP API configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // mysql, postgres, sqlite3
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	Prefix   string `mapstructure:"prefix"` // Table prefix (default: "shelfwire_")
}

// ConsumerConfig holds queue consumer configuration.
type ConsumerConfig struct {
	BatchSize         int           `mapstructure:"batch_size"`
	Workers           int           `mapstructure:"workers"`
	Interval          time.Duration `mapstructure:"interval"`
	DeliveryTimeout   time.Duration `mapstructure:"delivery_timeout"`
	FallbackRecipient string        `mapstructure:"fallback_recipient"`
	FallbackName      string        `mapstructure:"fallback_name"`
}

// SweeperConfig holds retry sweeper configuration.
type SweeperConfig struct {
	// Schedule is a cron expression or @every interval, e.g. "@every 2m".
	Schedule  string `mapstructure:"schedule"`
	BatchSize int    `mapstructure:"batch_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Load loads configuration from environment variables, with an optional
// .env file for local development.
func Load() (*Config, error) {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8081)
	viper.SetDefault("database.driver", "mysql")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)
	viper.SetDefault("database.user", "shelfwire")
	viper.SetDefault("database.name", "shelfwire")
	viper.SetDefault("database.prefix", "shelfwire_")
	viper.SetDefault("consumer.batch_size", 100)
	viper.SetDefault("consumer.workers", 4)
	viper.SetDefault("consumer.interval", 5*time.Second)
	viper.SetDefault("consumer.delivery_timeout", 10*time.Second)
	viper.SetDefault("sweeper.schedule", "@every 2m")
	viper.SetDefault("sweeper.batch_size", 500)
	viper.SetDefault("logging.level", "info")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// No .env file: environment variables only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Driver != "sqlite3" && cfg.Database.Password == "" {
		return nil, fmt.Errorf("DATABASE_PASSWORD environment variable is required")
	}

	return &cfg, nil
}

// GetDSN returns the database connection string based on driver.
func (c *DatabaseConfig) GetDSN() string {
	switch strings.ToLower(c.Driver) {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Name)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.User, c.Password, c.Name)
	case "sqlite3":
		return c.Name // SQLite uses file path as DSN
	default:
		return ""
	}
}
