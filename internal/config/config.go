package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.pigeon/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
	Server         Server `toml:"server"`
	Client         Client `toml:"client"`
}

// Server configures the pigeond daemon.
type Server struct {
	ListenAddr   string `toml:"listen_addr"`
	AckTimeoutMs int    `toml:"ack_timeout_ms"`
}

// Client configures the TUI/CLI clients.
type Client struct {
	ServerURL       string `toml:"server_url"`
	Token           string `toml:"token"`
	TypingWindowMs  int    `toml:"typing_window_ms"`
	ReconnectWaitMs int    `toml:"reconnect_wait_ms"`
}

// Default returns a config with all defaults applied.
func Default() *Config {
	return &Config{
		DefaultProfile: "default",
		Server: Server{
			ListenAddr:   "127.0.0.1:8484",
			AckTimeoutMs: 1000,
		},
		Client: Client{
			ServerURL:       "http://127.0.0.1:8484",
			TypingWindowMs:  1000,
			ReconnectWaitMs: 2000,
		},
	}
}

// Load reads config from the given path, layering file values over
// defaults. Returns defaults and the error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return Default(), err
	}
	if cfg.Server.AckTimeoutMs <= 0 {
		cfg.Server.AckTimeoutMs = 1000
	}
	if cfg.Client.TypingWindowMs <= 0 {
		cfg.Client.TypingWindowMs = 1000
	}
	if cfg.Client.ReconnectWaitMs <= 0 {
		cfg.Client.ReconnectWaitMs = 2000
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
