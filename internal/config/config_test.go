package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadPrecedenceFlagsOverEnvOverFile(t *testing.T) {
	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(configPath, []byte("output: plain\nretries: 1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("SWAPFLOW_OUTPUT", "json")
	flags := GlobalFlags{ConfigPath: configPath, Plain: true, Retries: 5}
	settings, err := Load(flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "plain" {
		t.Fatalf("expected flag to win, got output=%s", settings.OutputMode)
	}
	if settings.Retries != 5 {
		t.Fatalf("expected retries from flags, got %d", settings.Retries)
	}
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.yaml")
	body := `quote:
  ttl: 45s
  poll_attempts: 10
rpc:
  evm:
    "8453": https://base.example.org
minimums:
  "eip155:1/erc20:0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48": "2"
`
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	settings, err := Load(GlobalFlags{ConfigPath: configPath, Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.QuoteTTL != 45*time.Second {
		t.Fatalf("unexpected quote TTL: %v", settings.QuoteTTL)
	}
	if settings.PollAttempts != 10 {
		t.Fatalf("unexpected poll attempts: %d", settings.PollAttempts)
	}
	if settings.PollInterval != 2*time.Second {
		t.Fatalf("expected default poll interval, got %v", settings.PollInterval)
	}
	if settings.RPCOverrides[8453] != "https://base.example.org" {
		t.Fatalf("unexpected rpc override: %v", settings.RPCOverrides)
	}
	if settings.MinimumOverrides["eip155:1/erc20:0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"] != "2" {
		t.Fatalf("unexpected minimum override: %v", settings.MinimumOverrides)
	}
}

func TestLoadMutuallyExclusiveOutputFlags(t *testing.T) {
	_, err := Load(GlobalFlags{JSON: true, Plain: true})
	if err == nil {
		t.Fatal("expected error with --json and --plain")
	}
}
