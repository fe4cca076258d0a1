package goICloud

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads a YAML file over DefaultConfig and validates the result.
// Durations use Go syntax ("30s", "15m"). Handoff key files are read
// relative to the working directory.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	if cfg.Handoff.PrivateKeyFile != "" {
		if cfg.Handoff.PrivateKey, err = os.ReadFile(cfg.Handoff.PrivateKeyFile); err != nil {
			return Config{}, fmt.Errorf("read handoff private key: %w", err)
		}
	}
	if cfg.Handoff.PublicKeyFile != "" {
		if cfg.Handoff.PublicKey, err = os.ReadFile(cfg.Handoff.PublicKeyFile); err != nil {
			return Config{}, fmt.Errorf("read handoff public key: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
