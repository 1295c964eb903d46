// Package config owns two distinct surfaces: ExchangeConfig, the
// env-sourced ambient credential bundle (§6 "Configuration"), and
// StrategyConfig, the in-core tagged-union trading configuration managed
// by the config manager (§4.7). Loading ExchangeConfig from the process
// environment (or an equivalent YAML file) is the out-of-scope adapter
// boundary named in §1 — engines only ever see the already-parsed value.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ExchangeConfig carries exchange credentials and connection settings,
// mirroring the teacher's config.ExchangeConfig shape.
type ExchangeConfig struct {
	APIKey     Secret
	SecretKey  Secret
	Passphrase Secret
	BaseURL    string
	Simulated  bool
}

// LoadExchangeConfigFromEnv reads BITGET_API_KEY, BITGET_SECRET_KEY,
// BITGET_PASSPHRASE, BITGET_API_BASE_URL, and BITGET_SIMULATED (§6).
func LoadExchangeConfigFromEnv() (ExchangeConfig, error) {
	cfg := ExchangeConfig{
		APIKey:     Secret(os.Getenv("BITGET_API_KEY")),
		SecretKey:  Secret(os.Getenv("BITGET_SECRET_KEY")),
		Passphrase: Secret(os.Getenv("BITGET_PASSPHRASE")),
		BaseURL:    os.Getenv("BITGET_API_BASE_URL"),
		Simulated:  os.Getenv("BITGET_SIMULATED") == "1",
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" || cfg.Passphrase == "" {
		return ExchangeConfig{}, fmt.Errorf("BITGET_API_KEY, BITGET_SECRET_KEY, and BITGET_PASSPHRASE are required")
	}
	return cfg, nil
}

// yamlExchangeConfig mirrors ExchangeConfig's fields with yaml tags,
// grounded on the teacher's internal/config/config.go ExchangeConfig.
type yamlExchangeConfig struct {
	APIKey     string `yaml:"api_key"`
	SecretKey  string `yaml:"secret_key"`
	Passphrase string `yaml:"passphrase"`
	BaseURL    string `yaml:"base_url"`
	Simulated  bool   `yaml:"simulated"`
}

// LoadExchangeConfigFromYAML loads ExchangeConfig from a YAML file,
// expanding ${VAR} references against the process environment before
// parsing, the same way the teacher's LoadConfig keeps secrets out of
// the file on disk.
func LoadExchangeConfigFromYAML(filename string) (ExchangeConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return ExchangeConfig{}, fmt.Errorf("read exchange config file: %w", err)
	}

	var raw yamlExchangeConfig
	if err := yaml.Unmarshal([]byte(os.Expand(string(data), os.Getenv)), &raw); err != nil {
		return ExchangeConfig{}, fmt.Errorf("parse exchange config file: %w", err)
	}

	cfg := ExchangeConfig{
		APIKey:     Secret(raw.APIKey),
		SecretKey:  Secret(raw.SecretKey),
		Passphrase: Secret(raw.Passphrase),
		BaseURL:    raw.BaseURL,
		Simulated:  raw.Simulated,
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" || cfg.Passphrase == "" {
		return ExchangeConfig{}, fmt.Errorf("api_key, secret_key, and passphrase are required")
	}
	return cfg, nil
}
