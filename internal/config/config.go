// Package config loads and validates the daemon's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// ZoneConfig is one named override in the zones map.
type ZoneConfig struct {
	TimeoutSeconds int  `yaml:"timeout"`
	StrictTesting  bool `yaml:"strict_testing"`
}

// CacheOptions holds the options for the configured cache type.
type CacheOptions struct {
	CacheSize int `yaml:"cache_size"`
}

// CacheConfig selects and configures the policy cache implementation.
// "internal" (an in-process bounded LRU) is the only type currently
// implemented.
type CacheConfig struct {
	Type    string       `yaml:"type"`
	Options CacheOptions `yaml:"options"`
}

// Config is the root configuration document.
type Config struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Cache CacheConfig `yaml:"cache"`

	DefaultZone ZoneConfig            `yaml:"default_zone"`
	Zones       map[string]ZoneConfig `yaml:"zones"`
}

const (
	defaultHost          = "127.0.0.1"
	defaultPort          = 8461
	defaultCacheSize     = 10000
	defaultZoneTimeoutS  = 4
)

// Load reads and validates a Config from r, applying defaults for any
// field left unset in the source document.
func Load(r io.Reader) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	// An empty document decodes as io.EOF; it simply leaves every field
	// at its default.
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: %w", err)
	}

	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = defaultHost
	}
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Cache.Type == "" {
		c.Cache.Type = "internal"
	}
	if c.Cache.Options.CacheSize == 0 {
		c.Cache.Options.CacheSize = defaultCacheSize
	}
	if c.DefaultZone.TimeoutSeconds == 0 {
		c.DefaultZone.TimeoutSeconds = defaultZoneTimeoutS
	}
	for name, z := range c.Zones {
		if z.TimeoutSeconds == 0 {
			z.TimeoutSeconds = defaultZoneTimeoutS
			c.Zones[name] = z
		}
	}
}

// Error reports a configuration value that failed validation.
type Error struct {
	Field string
	Desc  string
}

func (e Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Desc)
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return Error{Field: "port", Desc: "must be between 1 and 65535"}
	}
	if c.Cache.Type != "internal" {
		return Error{Field: "cache.type", Desc: "unsupported cache type: " + c.Cache.Type}
	}
	if c.Cache.Options.CacheSize <= 0 {
		return Error{Field: "cache.options.cache_size", Desc: "must be positive"}
	}
	if c.DefaultZone.TimeoutSeconds <= 0 {
		return Error{Field: "default_zone.timeout", Desc: "must be positive"}
	}
	for name, z := range c.Zones {
		if z.TimeoutSeconds <= 0 {
			return Error{Field: "zones." + name + ".timeout", Desc: "must be positive"}
		}
	}
	return nil
}

// ZoneTimeout converts a ZoneConfig's integer seconds field into a
// time.Duration for use by the resolver.
func ZoneTimeout(z ZoneConfig) time.Duration {
	return time.Duration(z.TimeoutSeconds) * time.Second
}
