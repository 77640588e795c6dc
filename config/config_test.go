package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"tokenmart/crypto"
)

func testAddress(t *testing.T, fill byte) string {
	t.Helper()
	return crypto.NewAddress(crypto.TMTPrefix, bytes.Repeat([]byte{fill}, 20)).String()
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
OperatorAddress = "`+testAddress(t, 0x01)+`"
VaultAddress = "`+testAddress(t, 0x02)+`"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":8645" {
		t.Fatalf("unexpected RPCAddress default %q", cfg.RPCAddress)
	}
	if cfg.MetricsAddress != ":9090" {
		t.Fatalf("unexpected MetricsAddress default %q", cfg.MetricsAddress)
	}
	if cfg.Environment != "local" {
		t.Fatalf("unexpected Environment default %q", cfg.Environment)
	}
	if _, err := cfg.Operator(); err != nil {
		t.Fatalf("operator: %v", err)
	}
	if _, err := cfg.Vault(); err != nil {
		t.Fatalf("vault: %v", err)
	}
}

func TestLoadRejectsInvalidOperator(t *testing.T) {
	path := writeConfig(t, `
OperatorAddress = "nonsense"
VaultAddress = "`+testAddress(t, 0x02)+`"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected invalid operator address to fail load")
	}
}

func TestLoadRejectsSharedIdentity(t *testing.T) {
	shared := testAddress(t, 0x01)
	path := writeConfig(t, `
OperatorAddress = "`+shared+`"
VaultAddress = "`+shared+`"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected shared operator/vault identity to fail load")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected missing config file to fail load")
	}
}

func TestPausesView(t *testing.T) {
	view := Pauses{Market: true}
	if !view.IsPaused("market") {
		t.Fatalf("market must report paused")
	}
	if view.IsPaused("other") {
		t.Fatalf("unrelated modules must not report paused")
	}
}
