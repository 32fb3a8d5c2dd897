// Package config provides application configuration loaded from the
// environment (optionally via a .env file) with viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Database types supported by the store gateway.
const (
	DBTypeSQLite = "sqlite"
	DBTypeMySQL  = "mysql"
)

// Defaults applied when the environment does not provide a value.
const (
	DefaultPort          = 4000
	DefaultRetentionDays = 3
	DefaultTimezone      = "UTC"
	DefaultSQLitePath    = "data/webcron.db"
	DefaultMySQLPort     = 3306
)

var (
	// ErrUnsupportedDBType is returned for a DB_TYPE other than sqlite or mysql.
	ErrUnsupportedDBType = errors.New("unsupported database type")
	// ErrInvalidRetention is returned when LOG_RETENTION_DAYS is not positive.
	ErrInvalidRetention = errors.New("log retention days must be positive")
)

// DatabaseConfig holds the relational store configuration.
type DatabaseConfig struct {
	Type     string
	Host     string
	Port     int
	Username string
	Password string
	Database string
	// Path is the sqlite database file path (DB_TYPE=sqlite only).
	Path string
}

// RetentionConfig holds the execution-log retention settings.
type RetentionConfig struct {
	Days           int
	CleanupEnabled bool
}

// LoggerConfig holds the ambient logger settings.
type LoggerConfig struct {
	Level       string
	Encoding    string
	Development bool
}

// Config is the root application configuration.
type Config struct {
	Port      int
	Database  DatabaseConfig
	Retention RetentionConfig
	Logger    LoggerConfig
	// Timezone governs cron evaluation (TZ env, default UTC).
	Timezone string

	location *time.Location
}

// SetDefaults registers the default values with viper. It must be called
// before Load.
func SetDefaults() {
	viper.SetDefault("port", DefaultPort)
	viper.SetDefault("db_type", DBTypeSQLite)
	viper.SetDefault("db_host", "localhost")
	viper.SetDefault("db_port", DefaultMySQLPort)
	viper.SetDefault("db_username", "")
	viper.SetDefault("db_password", "")
	viper.SetDefault("db_database", "webcron")
	viper.SetDefault("db_path", DefaultSQLitePath)
	viper.SetDefault("log_retention_days", DefaultRetentionDays)
	viper.SetDefault("log_cleanup_enabled", true)
	viper.SetDefault("tz", DefaultTimezone)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "console")
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	SetDefaults()

	cfg := &Config{
		Port: viper.GetInt("port"),
		Database: DatabaseConfig{
			Type:     strings.ToLower(viper.GetString("db_type")),
			Host:     viper.GetString("db_host"),
			Port:     viper.GetInt("db_port"),
			Username: viper.GetString("db_username"),
			Password: viper.GetString("db_password"),
			Database: viper.GetString("db_database"),
			Path:     viper.GetString("db_path"),
		},
		Retention: RetentionConfig{
			Days:           viper.GetInt("log_retention_days"),
			CleanupEnabled: viper.GetBool("log_cleanup_enabled"),
		},
		Logger: LoggerConfig{
			Level:       viper.GetString("log_level"),
			Encoding:    viper.GetString("log_format"),
			Development: viper.GetBool("app_debug"),
		},
		Timezone: viper.GetString("tz"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	cfg.location = loc

	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	switch c.Database.Type {
	case DBTypeSQLite, DBTypeMySQL:
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedDBType, c.Database.Type)
	}

	if c.Retention.Days <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRetention, c.Retention.Days)
	}

	return nil
}

// Location returns the time zone used for cron evaluation.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
