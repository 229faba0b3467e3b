package config

import (
	"os"
	"path/filepath"
	"testing"

	"loanchain/crypto"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RPCAddress != defaultRPCAddress {
		t.Fatalf("expected default rpc address, got %s", cfg.RPCAddress)
	}
	if cfg.MaxParticipants != defaultMaxParticipants || cfg.MaxCollateralPositions != defaultMaxCollateral {
		t.Fatalf("expected default caps, got %d/%d", cfg.MaxParticipants, cfg.MaxCollateralPositions)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config file should be written: %v", err)
	}

	// A second load reads the written file back.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.RPCAddress != cfg.RPCAddress || again.NetworkName != cfg.NetworkName {
		t.Fatalf("reloaded config differs: %+v vs %+v", again, cfg)
	}
}

func TestLoadAppliesDefaultsToSparseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := "RPCAddress = \"0.0.0.0:9000\"\nPausedModules = [\"syndication\", \" \"]\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RPCAddress != "0.0.0.0:9000" {
		t.Fatalf("explicit value lost: %s", cfg.RPCAddress)
	}
	if cfg.DataDir != defaultDataDir {
		t.Fatalf("missing value should default, got %s", cfg.DataDir)
	}
	pauses := cfg.Pauses()
	if !pauses["syndication"] || len(pauses) != 1 {
		t.Fatalf("blank pause entries should be dropped, got %v", pauses)
	}
}

func TestValidateAdminAddress(t *testing.T) {
	cfg := &Config{AdminAddress: "not-bech32"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("malformed admin address should be rejected")
	}

	var raw [20]byte
	raw[19] = 0x01
	cfg.AdminAddress = crypto.MustNewAddress(crypto.LoanPrefix, raw[:]).String()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid admin address rejected: %v", err)
	}
	admin, err := cfg.Admin()
	if err != nil {
		t.Fatalf("Admin: %v", err)
	}
	if admin != raw {
		t.Fatalf("admin bytes lost in decode: %x", admin)
	}
}

func TestAdminDefaultsToZeroAddress(t *testing.T) {
	cfg := &Config{}
	admin, err := cfg.Admin()
	if err != nil {
		t.Fatalf("Admin: %v", err)
	}
	if admin != ([20]byte{}) {
		t.Fatalf("expected zero address, got %x", admin)
	}
}
