package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testCreator = "0x1111111111111111111111111111111111111111"
const testOracle = "0x2222222222222222222222222222222222222222"

func validConfig() Config {
	cfg := Defaults()
	cfg.Ledger.CreatorAddress = testCreator
	cfg.Ledger.OracleAddress = testOracle
	cfg.Oracle.AccessToken = "token"
	return cfg
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "banana"
	cfg.Ledger.OracleAddress = "not-an-address"
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"unknown mode", "oracle_address", "redis: addr"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestValidate_NettingPolicy(t *testing.T) {
	cfg := validConfig()
	cfg.Ledger.Netting = "net-everything"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "netting") {
		t.Errorf("err = %v, want netting policy rejection", err)
	}
}

func TestValidate_OracleCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Oracle.AccessToken = ""
	cfg.Oracle.ClientID = ""
	cfg.Oracle.ClientSecret = ""
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "oracle") {
		t.Errorf("err = %v, want oracle credential rejection", err)
	}

	// Server-only mode does not run the resolver and needs no credentials.
	cfg.Mode = "server"
	if err := cfg.Validate(); err != nil {
		t.Errorf("server mode: %v", err)
	}
}

func TestLoad_MergesAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
mode = "server"

[ledger]
creator_address = "` + testCreator + `"
oracle_address = "` + testOracle + `"

[oracle]
resolve_interval = "5m"

[server]
port = 9001
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("VYBE_SERVER_PORT", "9002")
	t.Setenv("VYBE_REDIS_ADDR", "redis.internal:6380")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "server" {
		t.Errorf("mode = %q, want server", cfg.Mode)
	}
	if cfg.Server.Port != 9002 {
		t.Errorf("port = %d, want env override 9002", cfg.Server.Port)
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr)
	}
	if cfg.Oracle.ResolveInterval.Duration != 5*time.Minute {
		t.Errorf("resolve_interval = %v, want 5m", cfg.Oracle.ResolveInterval.Duration)
	}
	// Untouched defaults survive the merge.
	if cfg.Database.Port != 5432 {
		t.Errorf("database port = %d, want default 5432", cfg.Database.Port)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Password = "hunter2"
	cfg.Server.APIKey = "secret"

	red := RedactedConfig(&cfg)
	if red.Database.Password != "***" || red.Server.APIKey != "***" || red.Oracle.AccessToken != "***" {
		t.Errorf("secrets not redacted: %+v", red)
	}
	if cfg.Database.Password != "hunter2" {
		t.Error("original mutated")
	}
}
