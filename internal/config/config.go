// Package config loads the broker's optional YAML configuration file, the
// way cellorg's internal/config package loads gox.yaml: read, unmarshal,
// fill in defaults. ENV_SERVER_ADDRESS always overrides the configured
// bind address, per spec.md §6.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EnvServerAddress is the environment variable that overrides the
// broker's bind address regardless of what the YAML file says.
const EnvServerAddress = "ENV_SERVER_ADDRESS"

// DefaultAddress is the broker's bind address when neither the config
// file nor ENV_SERVER_ADDRESS specify one.
const DefaultAddress = "127.0.0.1:1986"

// BrokerConfig holds the broker's network and logging settings.
type BrokerConfig struct {
	Port     string `yaml:"port"`
	Protocol string `yaml:"protocol"`
	Codec    string `yaml:"codec"`
	Debug    bool   `yaml:"debug"`
}

// Config is the top-level shape of the broker's YAML configuration file.
type Config struct {
	Broker BrokerConfig `yaml:"broker"`
}

// Load reads and parses filename, filling in defaults for any field left
// unset. A missing file is not an error: it returns a Config holding only
// the defaults, matching the original's ENV_SERVER_ADDRESS.unwrap_or(...)
// fallback behavior for the rare case a deployment runs with no file at
// all.
func Load(filename string) (*Config, error) {
	var cfg Config

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			if os.IsNotExist(err) {
				return applyDefaults(&cfg), nil
			}
			return nil, fmt.Errorf("config: read %s: %w", filename, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", filename, err)
		}
	}

	return applyDefaults(&cfg), nil
}

func applyDefaults(cfg *Config) *Config {
	if cfg.Broker.Port == "" {
		cfg.Broker.Port = DefaultAddress
	}
	if cfg.Broker.Protocol == "" {
		cfg.Broker.Protocol = "tcp"
	}
	if cfg.Broker.Codec == "" {
		cfg.Broker.Codec = "json"
	}
	return cfg
}

// ResolveAddress returns the broker's bind address: ENV_SERVER_ADDRESS
// when set, otherwise cfg.Broker.Port.
func (c *Config) ResolveAddress() string {
	if addr := os.Getenv(EnvServerAddress); addr != "" {
		return addr
	}
	return c.Broker.Port
}
