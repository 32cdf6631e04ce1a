package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Peer is a statically configured peer address.
type Peer struct {
	ID   string `toml:"id"`
	Addr string `toml:"addr"`
}

// Config represents ~/.basilisk/config.toml.
type Config struct {
	DataDir       string `toml:"data_dir"`
	ListenAddr    string `toml:"listen_addr"`
	AdvertiseAddr string `toml:"advertise_addr"`
	RelayAddr     string `toml:"relay_addr"`
	RelayInterval int    `toml:"relay_interval_seconds"`
	ProfileName   string `toml:"profile_name"`
	ProfileAvatar string `toml:"profile_avatar"`
	ShowQR        bool   `toml:"show_qr"`
	Peers         []Peer `toml:"peers"`
}

// Default returns the config used when no file exists yet.
func Default() *Config {
	return &Config{
		ListenAddr:    "127.0.0.1:7420",
		RelayInterval: 30,
		ShowQR:        true,
	}
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = Default().ListenAddr
	}
	if cfg.RelayInterval <= 0 {
		cfg.RelayInterval = Default().RelayInterval
	}
	return cfg, nil
}

// LoadOrDefault reads config from path, falling back to defaults when
// the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
