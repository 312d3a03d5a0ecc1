package config

import (
	"fmt"
	"os"

	yaml "go.yaml.in/yaml/v3"
)

// TraderConfig registers one participant's API credentials and the trader
// code their orders are entered under.
type TraderConfig struct {
	APIKey     string `yaml:"api_key"`
	APISecret  string `yaml:"api_secret"`
	TraderCode string `yaml:"trader_code"`
}

// Config holds the server configuration.
type Config struct {
	HTTPAddr     string         `yaml:"http_addr"`
	DatabasePath string         `yaml:"database_path"`
	JWTSecret    string         `yaml:"jwt_secret"`
	LogLevel     string         `yaml:"log_level"`
	Assets       []string       `yaml:"assets"`
	Traders      []TraderConfig `yaml:"traders"`
}

func defaults() *Config {
	return &Config{
		HTTPAddr:     ":8080",
		DatabasePath: "markets.db",
		JWTSecret:    "markets-api-secret",
		LogLevel:     "info",
		Assets:       []string{"A"},
	}
}

// Load reads configuration from the given YAML file, falling back to
// defaults when the path is empty or the file does not exist. Environment
// variables PORT, DATABASE_PATH and JWT_SECRET override file values.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.HTTPAddr = ":" + port
	}
	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWTSecret = secret
	}

	if len(cfg.Assets) == 0 {
		return nil, fmt.Errorf("config: at least one asset is required")
	}
	return cfg, nil
}
