package cli

import (
	"os"
	"time"

	"github.com/ChuLiYu/store-resolver/internal/resolver"
	"github.com/ChuLiYu/store-resolver/pkg/types"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config represents the complete system configuration structure
// Maps config file fields through YAML tags
type Config struct {
	Resolver struct {
		RefreshInterval time.Duration `yaml:"refresh_interval"`
		QueueSize       int           `yaml:"queue_size"`
	} `yaml:"resolver"`

	Coordinator struct {
		Address string        `yaml:"address"` // gRPC target; empty uses Stores
		Stores  []types.Store `yaml:"stores"`
	} `yaml:"coordinator"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`

	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Resolver.RefreshInterval = resolver.DefaultRefreshInterval
	cfg.Resolver.QueueSize = resolver.DefaultQueueSize
	cfg.Metrics.Port = 9090
	cfg.Log.Level = "info"
	return cfg
}

// loadConfig reads path over the defaults. A missing file at the default
// location yields the defaults.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && path == defaultConfigPath {
			return cfg, nil
		}
		return nil, errors.Wrap(err, "failed to read config file")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config YAML")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Resolver.RefreshInterval < 0 {
		return errors.Newf("resolver.refresh_interval must not be negative, got %s", c.Resolver.RefreshInterval)
	}
	if c.Resolver.QueueSize < 0 {
		return errors.Newf("resolver.queue_size must not be negative, got %d", c.Resolver.QueueSize)
	}
	for _, s := range c.Coordinator.Stores {
		if _, err := types.ParseStoreState(string(s.State)); err != nil {
			return errors.Wrapf(err, "coordinator.stores: store %d", s.ID)
		}
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	return nil
}

// newLogger builds the process logger from the log section.
func newLogger(c *Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Wrap(err, "log.level")
	}

	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
