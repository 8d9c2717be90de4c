package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all DevReLive server configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// HTTP server
	Server ServerConfig `yaml:"server"`

	// Document store
	Database DatabaseConfig `yaml:"database"`

	// Gemini Live (streaming AI endpoint)
	Gemini GeminiConfig `yaml:"gemini"`

	// LiveKit media rooms
	LiveKit LiveKitConfig `yaml:"livekit"`

	// Wallet authentication
	Auth AuthConfig `yaml:"auth"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the SQLite document store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// GeminiConfig configures the Gemini Live client.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
	Voice  string `yaml:"voice"`
}

// LiveKitConfig configures media-room token minting.
type LiveKitConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	TokenTTL  string `yaml:"token_ttl"`
}

// AuthConfig configures SIWE verification and the nonce store.
type AuthConfig struct {
	Domain string `yaml:"domain"`

	// Chain used for EIP-1271 smart-account verification
	ChainID int    `yaml:"chain_id"`
	RPCURL  string `yaml:"rpc_url"`

	// Full-clear interval for the pending nonce set
	NonceSweepInterval string `yaml:"nonce_sweep_interval"`
}

// LoggingConfig configures the category file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // json, text
	Dir        string          `yaml:"dir"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "DevReLive",
		Version: "0.3.0",

		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     "15s",
			WriteTimeout:    "30s",
			ShutdownTimeout: "10s",
		},

		Database: DatabaseConfig{
			Path: "data/devrelive.db",
		},

		Gemini: GeminiConfig{
			Model: "gemini-2.5-flash-native-audio-preview-09-2025",
			Voice: "Zephyr",
		},

		LiveKit: LiveKitConfig{
			TokenTTL: "6h",
		},

		Auth: AuthConfig{
			Domain:             "devrelive.xyz",
			ChainID:            8453, // Base mainnet
			RPCURL:             "https://mainnet.base.org",
			NonceSweepInterval: "10m",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Dir:    "data/logs",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Gemini.APIKey = key
	}
	if key := os.Getenv("LIVEKIT_API_KEY"); key != "" {
		c.LiveKit.APIKey = key
	}
	if secret := os.Getenv("LIVEKIT_API_SECRET"); secret != "" {
		c.LiveKit.APISecret = secret
	}
	if path := os.Getenv("DEVRELIVE_DB"); path != "" {
		c.Database.Path = path
	}
	if addr := os.Getenv("DEVRELIVE_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if url := os.Getenv("BASE_RPC_URL"); url != "" {
		c.Auth.RPCURL = url
	}
}

// Duration parses a duration-valued config field, falling back to def when
// the field is empty or malformed.
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}
