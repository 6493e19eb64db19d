package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	ModeDial   = "dial"
	ModeListen = "listen"
)

// LinkConfig configures one rpclinkctl process.
type LinkConfig struct {
	Name         string
	Mode         string
	Address      string
	AdminAddr    string
	LogLevel     string
	DrainTimeout time.Duration
}

type fileConfig struct {
	Name         string `toml:"name"`
	Mode         string `toml:"mode"`
	Address      string `toml:"address"`
	AdminAddr    string `toml:"admin_addr"`
	LogLevel     string `toml:"log_level"`
	DrainTimeout string `toml:"drain_timeout"`
}

func DefaultLinkConfig() LinkConfig {
	return LinkConfig{
		Name:         "rpclink",
		Mode:         ModeDial,
		Address:      "127.0.0.1:9257",
		AdminAddr:    "",
		LogLevel:     "info",
		DrainTimeout: 2 * time.Second,
	}
}

func LoadLinkConfig(path string) (LinkConfig, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return LinkConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	return fromFile(raw, meta)
}

// ParseLinkConfig decodes TOML text; keys left out keep their defaults.
func ParseLinkConfig(data string) (LinkConfig, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return LinkConfig{}, fmt.Errorf("config parse failed: %w", err)
	}
	return fromFile(raw, meta)
}

func fromFile(raw fileConfig, meta toml.MetaData) (LinkConfig, error) {
	cfg := DefaultLinkConfig()

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return LinkConfig{}, fmt.Errorf("config has unknown keys: %s", strings.Join(keys, ", "))
	}
	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("mode") {
		cfg.Mode = strings.ToLower(strings.TrimSpace(raw.Mode))
	}
	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("drain_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.DrainTimeout))
		if err != nil {
			return LinkConfig{}, fmt.Errorf("parse drain_timeout: %w", err)
		}
		cfg.DrainTimeout = d
	}

	if err := ValidateLinkConfig(cfg); err != nil {
		return LinkConfig{}, err
	}
	return cfg, nil
}

func ValidateLinkConfig(cfg LinkConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("link config missing name")
	}
	switch cfg.Mode {
	case ModeDial, ModeListen:
	default:
		return fmt.Errorf("link config invalid mode %q", cfg.Mode)
	}
	if strings.TrimSpace(cfg.Address) == "" {
		return fmt.Errorf("link config missing address")
	}
	if cfg.DrainTimeout <= 0 {
		return fmt.Errorf("link config drain_timeout must be positive")
	}
	return nil
}
