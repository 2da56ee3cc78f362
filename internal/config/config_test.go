package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Runtime.DebounceMs != 25000 {
		t.Errorf("expected default debounce 25000, got %d", cfg.Runtime.DebounceMs)
	}
	if cfg.RateLimit.MinIntervalMs != 30000 || cfg.RateLimit.WindowMs != 120000 || cfg.RateLimit.MaxPerWindow != 1 {
		t.Errorf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.Salience.Threshold != 2.5 {
		t.Errorf("expected threshold 2.5, got %f", cfg.Salience.Threshold)
	}
	if cfg.Runtime.StatusPushMs != 5000 {
		t.Errorf("expected status push 5000, got %d", cfg.Runtime.StatusPushMs)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("defaults not written to disk: %v", err)
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"runtime": {"debounce_ms": 1000}, "log_level": "debug"}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Runtime.DebounceMs != 1000 {
		t.Errorf("file override lost: %d", cfg.Runtime.DebounceMs)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level override lost: %s", cfg.LogLevel)
	}
	// Untouched sections keep defaults.
	if cfg.RateLimit.WindowMs != 120000 {
		t.Errorf("default lost after partial override: %d", cfg.RateLimit.WindowMs)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test-1234")
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.APIKey != "sk-test-1234" {
		t.Errorf("env override lost: %q", cfg.Provider.APIKey)
	}
}

func TestListValuesMasksSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Provider.APIKey = "sk-very-secret-key"

	values, err := ListValues(cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := values["provider.api_key"].(string)
	if !ok {
		t.Fatalf("provider.api_key missing from %v", values)
	}
	if got != "***-key" {
		t.Errorf("secret not masked: %q", got)
	}
}

func TestFlattenRoundTrip(t *testing.T) {
	nested := map[string]any{
		"provider":  map[string]any{"base_url": "http://x"},
		"log_level": "info",
	}
	flat := Flatten(nested)
	if flat["provider.base_url"] != "http://x" {
		t.Errorf("flatten failed: %v", flat)
	}

	back := Unflatten(flat)
	data1, _ := json.Marshal(nested)
	data2, _ := json.Marshal(back)
	if string(data1) != string(data2) {
		t.Errorf("round trip mismatch: %s vs %s", data1, data2)
	}
}

func TestIsSecretKey(t *testing.T) {
	if !IsSecretKey("provider.api_key") {
		t.Error("provider.api_key should be secret")
	}
	if IsSecretKey("log_level") {
		t.Error("log_level should not be secret")
	}
}
