package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SupervisorConfig holds the supervisor process's configuration: worker
// pool sizing, the transport mode, and everything a worker needs to be
// told rather than re-derive (spec §4.6). Loaded from an optional config
// file plus environment overrides via viper, with COREHTTP_ as the
// environment prefix.
type SupervisorConfig struct {
	Mode          string        `mapstructure:"mode"`
	ListenAddress string        `mapstructure:"listen_address"`
	Slots         int           `mapstructure:"slots"`
	Interval      time.Duration `mapstructure:"interval"`
	LogLevel      string        `mapstructure:"log_level"`
	MetricsAddr   string        `mapstructure:"metrics_address"`

	RedisAddr   string `mapstructure:"redis_address"`
	InboundKey  string `mapstructure:"queue_inbound_key"`
	OutboundKey string `mapstructure:"queue_outbound_key"`

	JWTSecret      string   `mapstructure:"jwt_secret"`
	CORSOrigins    []string `mapstructure:"cors_origins"`
	RateLimitRPS   float64  `mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`

	AuditDatabaseURL   string `mapstructure:"audit_database_url"`
	AuditMigrationsDir string `mapstructure:"audit_migrations_dir"`
}

// LoadSupervisorConfig reads configFile (if non-empty and present) and
// layers COREHTTP_-prefixed environment variables over it, following the
// precedence viper documents: explicit Set > flag > env > config file >
// default.
func LoadSupervisorConfig(configFile string) (*SupervisorConfig, error) {
	v := viper.New()

	v.SetDefault("mode", "http")
	v.SetDefault("listen_address", ":8080")
	v.SetDefault("slots", 4)
	v.SetDefault("interval", 2*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_address", ":9090")
	v.SetDefault("redis_address", "127.0.0.1:6379")
	v.SetDefault("queue_inbound_key", "corehttp:inbound")
	v.SetDefault("queue_outbound_key", "corehttp:outbound")
	v.SetDefault("rate_limit_rps", 50.0)
	v.SetDefault("rate_limit_burst", 100)
	v.SetDefault("audit_migrations_dir", "file://internal/audit/migrations")

	v.SetEnvPrefix("corehttp")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config: reading %s: %w", configFile, err)
			}
		}
	}

	cfg := &SupervisorConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling supervisor configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks supervisor-level bounds that viper's Unmarshal does not
// itself enforce.
func (c *SupervisorConfig) Validate() error {
	if c.Mode != "http" && c.Mode != "queue" {
		return fmt.Errorf("config: mode must be http or queue, got %q", c.Mode)
	}
	if c.Slots <= 0 {
		return fmt.Errorf("config: slots must be positive, got %d", c.Slots)
	}
	if c.Interval < time.Second {
		return fmt.Errorf("config: interval must be at least 1s, got %s", c.Interval)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("config: invalid log level %q", c.LogLevel)
	}
	return nil
}
