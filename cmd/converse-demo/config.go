package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type (
	// Config is the demo configuration, loaded from an optional YAML file
	// with environment variables overriding secrets.
	Config struct {
		Redis    RedisConfig `yaml:"redis"`
		Mongo    MongoConfig `yaml:"mongo"`
		Model    ModelConfig `yaml:"model"`
		Language string      `yaml:"language"`
		// Persistence is the conversation strategy: none, client, server
		// or both.
		Persistence string `yaml:"persistence"`
		// KeepCount bounds the verbatim memory window.
		KeepCount int `yaml:"keep_count"`
		// MaxMessageRunes is the size guard budget.
		MaxMessageRunes int `yaml:"max_message_runes"`
	}

	RedisConfig struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	}

	MongoConfig struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	}

	ModelConfig struct {
		// Provider selects the adapter: openai or anthropic.
		Provider string `yaml:"provider"`
		// Name is the provider model identifier.
		Name string `yaml:"name"`
		// APIKey defaults to OPENAI_API_KEY or ANTHROPIC_API_KEY.
		APIKey string `yaml:"api_key"`
		// TPM and MaxTPM configure the adaptive rate limiter budget.
		TPM    float64 `yaml:"tpm"`
		MaxTPM float64 `yaml:"max_tpm"`
	}
)

// LoadConfig reads the YAML file when path is set and fills in defaults and
// environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Redis:           RedisConfig{Addr: "localhost:6379"},
		Mongo:           MongoConfig{URI: "mongodb://localhost:27017", Database: "converse"},
		Model:           ModelConfig{Provider: "openai", Name: "gpt-4o-mini", TPM: 60000, MaxTPM: 120000},
		Language:        "en",
		Persistence:     "both",
		KeepCount:       10,
		MaxMessageRunes: 4000,
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if cfg.Model.APIKey == "" {
		switch cfg.Model.Provider {
		case "openai":
			cfg.Model.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			cfg.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if uri := os.Getenv("MONGO_URI"); uri != "" {
		cfg.Mongo.URI = uri
	}
	return cfg, nil
}
