package config

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// GenesisAccount seeds a ledger balance at startup. Address is a 40-char hex
// string, Balance a base-10 integer in base units.
type GenesisAccount struct {
	Address string `toml:"Address"`
	Balance string `toml:"Balance"`
}

// APIClient binds an HMAC credential pair to the ledger address the client
// acts as. Requests signed with Secret execute with Address as the caller.
type APIClient struct {
	Key     string `toml:"Key"`
	Secret  string `toml:"Secret"`
	Address string `toml:"Address"`
}

// RateLimit bounds request throughput per API client.
type RateLimit struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
}

type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	Environment   string `toml:"Environment"`
	LogFile       string `toml:"LogFile"`

	// AuthTimestampToleranceSeconds bounds clock skew accepted on signed
	// requests.
	AuthTimestampToleranceSeconds int64 `toml:"AuthTimestampToleranceSeconds"`

	RateLimit RateLimit        `toml:"RateLimit"`
	Genesis   []GenesisAccount `toml:"Genesis"`
	Clients   []APIClient      `toml:"Clients"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8080"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./custodia-data"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if c.AuthTimestampToleranceSeconds <= 0 {
		c.AuthTimestampToleranceSeconds = 300
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = 10
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 20
	}
	if c.Genesis == nil {
		c.Genesis = []GenesisAccount{}
	}
	if c.Clients == nil {
		c.Clients = []APIClient{}
	}
}

// Validate checks the fields that would otherwise only fail deep inside the
// node at request time.
func (c *Config) Validate() error {
	for i, acct := range c.Genesis {
		if _, err := DecodeAddress(acct.Address); err != nil {
			return fmt.Errorf("config: genesis account %d: %w", i, err)
		}
		bal, ok := new(big.Int).SetString(strings.TrimSpace(acct.Balance), 10)
		if !ok || bal.Sign() < 0 {
			return fmt.Errorf("config: genesis account %d: invalid balance %q", i, acct.Balance)
		}
	}
	seen := make(map[string]struct{}, len(c.Clients))
	for i, client := range c.Clients {
		key := strings.TrimSpace(client.Key)
		if key == "" {
			return fmt.Errorf("config: client %d: empty api key", i)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("config: client %d: duplicate api key %q", i, key)
		}
		seen[key] = struct{}{}
		if strings.TrimSpace(client.Secret) == "" {
			return fmt.Errorf("config: client %d: empty api secret", i)
		}
		if _, err := DecodeAddress(client.Address); err != nil {
			return fmt.Errorf("config: client %d: %w", i, err)
		}
	}
	return nil
}

// DecodeAddress parses a 40-character hex string into a ledger address. An
// optional 0x prefix is accepted.
func DecodeAddress(raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q: %w", raw, err)
	}
	if len(decoded) != len(addr) {
		return addr, fmt.Errorf("invalid address %q: want %d bytes, got %d", raw, len(addr), len(decoded))
	}
	copy(addr[:], decoded)
	return addr, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
