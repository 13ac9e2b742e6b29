package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "enddevice.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

const otaaConfig = `
device:
  dev_eui: "0102030405060708"
  mode: OTAA
  lorawan_version: "1.0.3"
  join_eui: "0807060504030201"
  app_key: "00112233445566778899aabbccddeeff"
`

const abpConfig = `
device:
  dev_eui: "0102030405060708"
  mode: ABP
  lorawan_version: "1.0.3"
  dev_addr: "01020304"
  nwk_s_key: "00112233445566778899aabbccddeeff"
  app_s_key: "00112233445566778899aabbccddeeff"
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, otaaConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.MAC.Region != "EU868" {
		t.Errorf("MAC.Region = %q, want EU868", cfg.MAC.Region)
	}
	if cfg.MAC.MaxConfirmedMsgRetries != 8 {
		t.Errorf("MaxConfirmedMsgRetries = %d, want 8", cfg.MAC.MaxConfirmedMsgRetries)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestLoadRejectsInvalidMode(t *testing.T) {
	path := writeTempConfig(t, `
device:
  dev_eui: "0102030405060708"
  mode: BOGUS
  lorawan_version: "1.0.3"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid device.mode")
	}
}

func TestLoadRejectsMissingDevEUI(t *testing.T) {
	path := writeTempConfig(t, `
device:
  mode: OTAA
  lorawan_version: "1.0.3"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing device.dev_eui")
	}
}

func TestActivationParamsOTAA(t *testing.T) {
	path := writeTempConfig(t, otaaConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	params, err := cfg.ActivationParams()
	if err != nil {
		t.Fatalf("ActivationParams: %v", err)
	}
	if params.DevEUI.String() != "0102030405060708" {
		t.Errorf("DevEUI = %s, want 0102030405060708", params.DevEUI)
	}
	if params.JoinEUI.String() != "0807060504030201" {
		t.Errorf("JoinEUI = %s, want 0807060504030201", params.JoinEUI)
	}
}

func TestActivationParamsABP(t *testing.T) {
	path := writeTempConfig(t, abpConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	params, err := cfg.ActivationParams()
	if err != nil {
		t.Fatalf("ActivationParams: %v", err)
	}
	if params.DevAddr.String() != "01020304" {
		t.Errorf("DevAddr = %s, want 01020304", params.DevAddr)
	}
}

func TestActivationParamsRejectsBadHex(t *testing.T) {
	path := writeTempConfig(t, `
device:
  dev_eui: "not-hex"
  mode: OTAA
  lorawan_version: "1.0.3"
  join_eui: "0807060504030201"
  app_key: "00112233445566778899aabbccddeeff"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := cfg.ActivationParams(); err == nil {
		t.Fatal("expected error for non-hex dev_eui")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
