package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// GrantEntry seeds the static permission checker for one member.
type GrantEntry struct {
	WorkspaceID  string   `mapstructure:"workspace_id"`
	MemberID     string   `mapstructure:"member_id"`
	Capabilities []string `mapstructure:"capabilities"`
	Roles        []string `mapstructure:"roles"`
}

// RateRule overrides one rate-guard window from configuration.
type RateRule struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// Config captures the service configuration.
type Config struct {
	App struct {
		Env string `mapstructure:"env"`
	} `mapstructure:"app"`

	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`

	SQLite struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"sqlite"`

	Storage struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"storage"`

	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`

	Audit struct {
		AMQPURL  string `mapstructure:"amqp_url"`
		Exchange string `mapstructure:"exchange"`
	} `mapstructure:"audit"`

	RateLimits map[string]RateRule `mapstructure:"rate_limits"`

	Grants []GrantEntry `mapstructure:"grants"`
}

// Load reads configuration from the optional file at path, applying defaults
// and APP_* environment overrides.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	v.SetDefault("app.env", "prod")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("sqlite.dsn", "file:staffsched.db?_pragma=foreign_keys(1)")
	v.SetDefault("storage.timeout", 5*time.Second)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("audit.exchange", "staffsched.audit")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, err
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("config: http.addr is required")
	}
	if c.SQLite.DSN == "" {
		return errors.New("config: sqlite.dsn is required")
	}
	if c.Storage.Timeout <= 0 {
		return errors.New("config: storage.timeout must be positive")
	}
	for operation, rule := range c.RateLimits {
		if rule.Limit <= 0 || rule.Window <= 0 {
			return errors.New("config: rate limit for " + operation + " must have positive limit and window")
		}
	}
	return nil
}
