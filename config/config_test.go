package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custodia.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":8080" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 || cfg.RateLimit.Burst <= 0 {
		t.Fatalf("rate limit defaults not applied: %+v", cfg.RateLimit)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not persisted: %v", err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("reload persisted default: %v", err)
	}
}

func TestLoadParsesAccountsAndClients(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custodia.toml")
	raw := `
ListenAddress = ":9000"
Environment = "test"

[[Genesis]]
Address = "0x1111111111111111111111111111111111111111"
Balance = "500000000"

[[Clients]]
Key = "ops"
Secret = "topsecret"
Address = "2222222222222222222222222222222222222222"
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":9000" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if len(cfg.Genesis) != 1 || len(cfg.Clients) != 1 {
		t.Fatalf("unexpected sections: %+v", cfg)
	}
	addr, err := DecodeAddress(cfg.Clients[0].Address)
	if err != nil {
		t.Fatalf("decode client address: %v", err)
	}
	if addr[0] != 0x22 {
		t.Fatalf("unexpected decoded address %x", addr)
	}
}

func TestLoadRejectsBadGenesis(t *testing.T) {
	cases := map[string]string{
		"short address": `
[[Genesis]]
Address = "abcd"
Balance = "100"
`,
		"bad balance": `
[[Genesis]]
Address = "1111111111111111111111111111111111111111"
Balance = "not-a-number"
`,
		"duplicate api key": `
[[Clients]]
Key = "dup"
Secret = "a"
Address = "1111111111111111111111111111111111111111"

[[Clients]]
Key = "dup"
Secret = "b"
Address = "2222222222222222222222222222222222222222"
`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "custodia.toml")
			if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
