package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"gearrent/crypto"
)

// Config captures the runtime configuration of the rental engine daemon.
type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`
	ServiceName    string `toml:"ServiceName"`
	// AdminAddress is the only identity allowed to invoke the bulk clear
	// operation. Leaving it empty disables the operation entirely.
	AdminAddress  string `toml:"AdminAddress"`
	FeedRetention int    `toml:"FeedRetention"`
}

// Load loads the configuration from the given path, creating a default file
// on first run.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8760"
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = "127.0.0.1:8761"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./gearrent-data"
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = "gearrentd"
	}
	if cfg.FeedRetention <= 0 {
		cfg.FeedRetention = 4096
	}
}

func validate(cfg *Config) error {
	if addr := strings.TrimSpace(cfg.AdminAddress); addr != "" {
		if _, err := crypto.DecodeAddress(addr); err != nil {
			return fmt.Errorf("invalid AdminAddress: %w", err)
		}
	}
	return nil
}

// Admin decodes the configured admin identity. The zero address is returned
// when none is configured.
func (c *Config) Admin() (crypto.Address, error) {
	addr := strings.TrimSpace(c.AdminAddress)
	if addr == "" {
		return crypto.Address{}, nil
	}
	return crypto.DecodeAddress(addr)
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
