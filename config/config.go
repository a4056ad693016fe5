package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Storage backends the host can run the escrow ledger on.
const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
)

// Config is the host configuration for a crosslock escrow ledger.
// LogMaxSizeMB caps a rotated log file before rollover; zero (or the field
// left unset) selects the 64MB default, so rotation is always bounded.
type Config struct {
	NetworkName string `toml:"NetworkName"`
	DataDir     string `toml:"DataDir"`
	Backend     string `toml:"Backend"`
	LogEnv      string `toml:"LogEnv"`
	LogFile     string `toml:"LogFile"`
	LogMaxSize  int    `toml:"LogMaxSizeMB"`
	LogBackups  int    `toml:"LogMaxBackups"`
}

// Load reads the configuration from path, creating a default file when none
// exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the host cannot run with.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendLevelDB, BackendBolt:
	default:
		return fmt.Errorf("config: unsupported storage backend %q", c.Backend)
	}
	if c.Backend != BackendMemory && strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir required for backend %q", c.Backend)
	}
	if c.LogMaxSize < 0 || c.LogBackups < 0 {
		return fmt.Errorf("config: log rotation settings must be non-negative")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "crosslock-local"
	}
	if strings.TrimSpace(cfg.Backend) == "" {
		cfg.Backend = BackendLevelDB
	}
	// TOML cannot distinguish an explicit zero from an absent field, so
	// zero always means "take the default".
	if cfg.LogMaxSize == 0 {
		cfg.LogMaxSize = 64
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		NetworkName: "crosslock-local",
		DataDir:     "./data",
		Backend:     BackendLevelDB,
		LogEnv:      "dev",
		LogMaxSize:  64,
		LogBackups:  3,
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
