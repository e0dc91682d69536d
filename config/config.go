// Package config loads planner settings from an optional YAML file and PLANNER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. PLANNER_API_BASE_URL
const EnvPrefix = "PLANNER"

// Store drivers
const (
	DriverFile   = "file"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Config is the planner client and mock API configuration
type Config struct {
	API struct {
		BaseURL        string        `mapstructure:"base_url"`
		Timeout        time.Duration `mapstructure:"timeout"`
		RefreshTimeout time.Duration `mapstructure:"refresh_timeout"`
	} `mapstructure:"api"`
	Store struct {
		Driver string `mapstructure:"driver"`
		Path   string `mapstructure:"path"`
		Prefix string `mapstructure:"prefix"`
	} `mapstructure:"store"`
	Redis struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"redis"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Mock struct {
		Addr          string        `mapstructure:"addr"`
		AccessTTL     time.Duration `mapstructure:"access_ttl"`
		RefreshTTL    time.Duration `mapstructure:"refresh_ttl"`
		Secret        string        `mapstructure:"secret"`
		RotateRefresh bool          `mapstructure:"rotate_refresh"`
	} `mapstructure:"mock"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:3000")
	v.SetDefault("api.timeout", "15s")
	v.SetDefault("api.refresh_timeout", "15s")

	v.SetDefault("store.driver", DriverFile)
	v.SetDefault("store.path", defaultSessionPath())
	v.SetDefault("store.prefix", "cpa_")

	v.SetDefault("redis.url", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("mock.addr", ":3000")
	v.SetDefault("mock.access_ttl", "5m")
	v.SetDefault("mock.refresh_ttl", "120h")
	v.SetDefault("mock.secret", "")
	v.SetDefault("mock.rotate_refresh", false)
}

// Load reads configuration. file may be empty, in which case planner.yaml is
// looked up in the working directory and the user config directory.
func Load(file string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("planner")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "planner"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks values viper cannot type-check
func (c Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("config error: api.base_url is required")
	}
	if c.API.Timeout <= 0 {
		return errors.New("config error: api.timeout must be positive")
	}
	switch c.Store.Driver {
	case DriverFile:
		if c.Store.Path == "" {
			return errors.New("config error: store.path is required for the file driver")
		}
	case DriverRedis:
		if c.Redis.URL == "" {
			return errors.New("config error: redis.url is required for the redis driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config error: unknown store.driver %q", c.Store.Driver)
	}
	return nil
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "planner", "session.json")
}
