//go:build linux

package main

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is the daide-client configuration file.
type Config struct {
	Server  ServerConfig  `toml:"server" yaml:"server"`
	Socket  SocketConfig  `toml:"socket" yaml:"socket"`
	Logging LoggingConfig `toml:"logging" yaml:"logging"`
}

// ServerConfig names the DAIDE server to connect to.
type ServerConfig struct {
	Address string `toml:"address" yaml:"address"` // dotted IPv4 literal
	Port    int    `toml:"port" yaml:"port"`
	Name    string `toml:"name" yaml:"name"` // reported in logs only
}

// SocketConfig tunes the connection, its registry and the poller.
type SocketConfig struct {
	ReadBufferSize   int `toml:"read_buffer_size" yaml:"read_buffer_size"`   // bytes per readable notification
	RegistryCapacity int `toml:"registry_capacity" yaml:"registry_capacity"` // max live connections
	PollerEvents     int `toml:"poller_events" yaml:"poller_events"`         // events per epoll wait
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level       string `toml:"level" yaml:"level"` // debug, info, warn, error
	Development bool   `toml:"development" yaml:"development"`
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address: "127.0.0.1",
			Port:    16713,
			Name:    "daide-client",
		},
		Socket: SocketConfig{
			ReadBufferSize:   1024,
			RegistryCapacity: 1024,
			PollerEvents:     128,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// loadConfig reads path over the defaults. The format follows the extension.
// An empty path returns the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}

	switch filepath.Ext(path) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse toml config %s", path)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse yaml config %s", path)
		}
	default:
		return cfg, errors.Errorf("unsupported config format %q", filepath.Ext(path))
	}

	return cfg, nil
}

func newLogger(cfg LoggingConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrap(err, "logging level")
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	return zcfg.Build()
}
