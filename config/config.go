// Package config reads the YAML configuration file.
package config

import (
	"fmt"
	"os"

	"github.com/always-cache/cookie-chain/store"

	"gopkg.in/yaml.v3"
)

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

type Config struct {
	// Environment responses are stored in and looked up from.
	Environment string `yaml:"environment"`
	// Port the API listens on.
	Port int `yaml:"port"`
	// Store backend: memory, sqlite or redis.
	Store  string       `yaml:"store"`
	SQLite SQLiteConfig `yaml:"sqlite"`
	Redis  RedisConfig  `yaml:"redis"`
	// Request definitions saved to the store at startup.
	Requests []store.Request `yaml:"requests"`
}

type SQLiteConfig struct {
	// Database file name, "memory" for an in-memory database.
	Filename string `yaml:"filename"`
}

type RedisConfig struct {
	Addr   string `yaml:"addr"`
	Prefix string `yaml:"prefix"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Environment: "default",
		Port:        8080,
		Store:       StoreSQLite,
		SQLite:      SQLiteConfig{Filename: "cookie-chain.db"},
		Redis:       RedisConfig{Addr: "localhost:6379"},
	}
}

// Load reads the file over the defaults and validates the result.
func Load(filename string) (Config, error) {
	config := Default()
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	if err := yaml.Unmarshal(configBytes, &config); err != nil {
		return config, fmt.Errorf("parse %s: %w", filename, err)
	}
	return config, config.Validate()
}

// Validate checks the store backend and request definitions.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreSQLite, StoreRedis:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	seen := make(map[string]bool, len(c.Requests))
	for i, req := range c.Requests {
		if req.ID == "" {
			return fmt.Errorf("request %d: id is required", i)
		}
		if seen[req.ID] {
			return fmt.Errorf("request %s: duplicate id", req.ID)
		}
		seen[req.ID] = true
		if req.URL == "" {
			return fmt.Errorf("request %s: url is required", req.ID)
		}
	}
	return nil
}
