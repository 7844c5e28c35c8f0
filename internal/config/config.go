package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store drivers understood by the application.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// StoreConfig selects and configures the credential store backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	// DSN is a file path for sqlite, a go-sql-driver DSN for mysql and host:port for redis.
	DSN           string `mapstructure:"dsn" yaml:"dsn"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db"`
	RedisKey      string `mapstructure:"redis_key" yaml:"redis_key"`
}

// DefaultJWTSecret is the placeholder signing key written to new config files.
const DefaultJWTSecret = "change-me"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	HTTPAddr          string        `mapstructure:"http_addr" yaml:"http_addr"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`
	Store             StoreConfig   `mapstructure:"store" yaml:"store"`
	JWTSecret         string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer         string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTTTL            time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`
	MaxLineBytes      int           `mapstructure:"max_line_bytes" yaml:"max_line_bytes"`
	OutboxSize        int           `mapstructure:"outbox_size" yaml:"outbox_size"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	AuthTimeout       time.Duration `mapstructure:"auth_timeout" yaml:"auth_timeout"`
	MaxAuthAttempts   int           `mapstructure:"max_auth_attempts" yaml:"max_auth_attempts"`
	RateLimit         int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:      ":55555",
		HTTPAddr:  ":8080",
		LogLevel:  "info",
		LogFormat: "console",
		Store: StoreConfig{
			Driver:   DriverSQLite,
			DSN:      "linechat.db",
			RedisKey: "linechat:credentials",
		},
		JWTSecret:         DefaultJWTSecret,
		JWTIssuer:         "linechat",
		JWTTTL:            24 * time.Hour,
		MaxLineBytes:      4096,
		OutboxSize:        32,
		WriteTimeout:      10 * time.Second,
		AuthTimeout:       30 * time.Second,
		MaxAuthAttempts:   3,
		RateLimit:         120,
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
	}
}

// InsecureJWTSecret reports whether the HTTP API would sign tokens with the
// well-known placeholder key.
func (c *Config) InsecureJWTSecret() bool {
	return c.HTTPAddr != "" && c.JWTSecret == DefaultJWTSecret
}

// Validate reports every problem found in the configuration.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	switch c.Store.Driver {
	case DriverSQLite, DriverMySQL, DriverRedis:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret must not be empty"))
	}
	if c.JWTTTL <= 0 {
		errs = append(errs, errors.New("jwt_ttl must be positive"))
	}
	if c.MaxLineBytes < 64 {
		errs = append(errs, errors.New("max_line_bytes must be at least 64"))
	}
	if c.OutboxSize <= 0 {
		errs = append(errs, errors.New("outbox_size must be positive"))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, errors.New("write_timeout must be positive"))
	}
	if c.AuthTimeout <= 0 {
		errs = append(errs, errors.New("auth_timeout must be positive"))
	}
	if c.MaxAuthAttempts <= 0 {
		errs = append(errs, errors.New("max_auth_attempts must be positive"))
	}
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("rate_limit_per_minute must not be negative"))
	}
	return errors.Join(errs...)
}
