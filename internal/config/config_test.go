package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"keygate/internal/config"
)

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "keygate")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7512" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if !strings.HasSuffix(cfg.Paths.SocketPath, "keygated.sock") {
		t.Fatalf("unexpected socket path: %q", cfg.Paths.SocketPath)
	}
	if cfg.Sessions.DefaultScheme != "widevine" {
		t.Fatalf("unexpected default scheme: %q", cfg.Sessions.DefaultScheme)
	}
	if cfg.Licensing.RequestTimeout != 30 {
		t.Fatalf("unexpected request timeout: %d", cfg.Licensing.RequestTimeout)
	}
	if cfg.LedgerPath() != filepath.Join(wantData, "ledger.db") {
		t.Fatalf("unexpected ledger path: %q", cfg.LedgerPath())
	}
}

func TestLoadParsesEndpointsAndNormalizesNames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + dir + `/data"
log_dir = "` + dir + `/logs"
socket_path = "` + dir + `/keygated.sock"

[licensing]
request_timeout = 5

[licensing.endpoints.Widevine]
license_url = "https://license.example.com/wv"
provisioning_url = "https://provision.example.com/cert"

[sessions]
default_scheme = "ClearKey"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	endpoint, ok := cfg.Licensing.Endpoints["widevine"]
	if !ok {
		t.Fatalf("expected widevine endpoint, got %v", cfg.Licensing.Endpoints)
	}
	if endpoint.LicenseURL != "https://license.example.com/wv" {
		t.Fatalf("unexpected license url: %q", endpoint.LicenseURL)
	}
	if cfg.Sessions.DefaultScheme != "clearkey" {
		t.Fatalf("expected lowered default scheme, got %q", cfg.Sessions.DefaultScheme)
	}
	if cfg.Licensing.RequestTimeout != 5 {
		t.Fatalf("unexpected request timeout: %d", cfg.Licensing.RequestTimeout)
	}
}

func TestLoadRejectsUnknownScheme(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[licensing.endpoints.fairsight]
license_url = "https://license.example.com"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil || !strings.Contains(err.Error(), "unknown scheme") {
		t.Fatalf("expected unknown scheme error, got %v", err)
	}
}

func TestLoadRejectsBadLicenseURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[licensing.endpoints.widevine]
license_url = ""
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil || !strings.Contains(err.Error(), "license_url") {
		t.Fatalf("expected license_url error, got %v", err)
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	written, err := config.WriteSample(path)
	if err != nil {
		t.Fatalf("WriteSample returned error: %v", err)
	}
	if written != path {
		t.Fatalf("unexpected written path: %q", written)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[licensing]") {
		t.Fatalf("sample config missing licensing section: %q", data)
	}

	if _, err := config.WriteSample(path); err == nil {
		t.Fatal("expected overwrite refusal")
	}
}
