package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaults_Validate(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestExpandEnvVars_Set(t *testing.T) {
	t.Setenv("AUTOSOCIOLY_TEST_KEY", "sk_12345")
	out := ExpandEnvVars(`{"apiKey": "${AUTOSOCIOLY_TEST_KEY}"}`)
	if !strings.Contains(out, "sk_12345") {
		t.Fatalf("expected substitution, got %q", out)
	}
}

func TestExpandEnvVars_Default(t *testing.T) {
	os.Unsetenv("AUTOSOCIOLY_MISSING_VAR")
	out := ExpandEnvVars(`${AUTOSOCIOLY_MISSING_VAR:-fallback}`)
	if out != "fallback" {
		t.Fatalf("expected default value, got %q", out)
	}
}

func TestExpandEnvVars_UnsetNoDefault(t *testing.T) {
	os.Unsetenv("AUTOSOCIOLY_MISSING_VAR")
	in := `${AUTOSOCIOLY_MISSING_VAR}`
	if out := ExpandEnvVars(in); out != in {
		t.Fatalf("unset var without default should stay literal, got %q", out)
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Defaults()
	cfg.GetLate.APIKey = "sk_test"
	cfg.Server.Port = 9001
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.GetLate.APIKey != "sk_test" {
		t.Errorf("apiKey lost in round trip: %q", loaded.GetLate.APIKey)
	}
	if loaded.Server.Port != 9001 {
		t.Errorf("port lost in round trip: %d", loaded.Server.Port)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"server":{"port":9999}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("expected overridden port, got %d", cfg.Server.Port)
	}
	if cfg.GetLate.BaseURL != "https://getlate.dev/api/v1" {
		t.Errorf("expected default baseUrl, got %q", cfg.GetLate.BaseURL)
	}
	if cfg.General.HashtagCount != 10 {
		t.Errorf("expected default hashtagCount, got %d", cfg.General.HashtagCount)
	}
}

func TestValidate_BadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.General.LogLevel = "verbose" }},
		{"hashtag count zero", func(c *Config) { c.General.HashtagCount = 0 }},
		{"empty base url", func(c *Config) { c.GetLate.BaseURL = "" }},
		{"zero timeout", func(c *Config) { c.GetLate.TimeoutSeconds = 0 }},
		{"zero post timeout", func(c *Config) { c.GetLate.PostTimeoutSeconds = 0 }},
		{"negative retries", func(c *Config) { c.GetLate.MaxRetries = -1 }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"notify without token", func(c *Config) { c.Notify.Enabled = true }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestGetByPath(t *testing.T) {
	cfg := Defaults()
	val, err := GetByPath(cfg, "getlate.baseUrl")
	if err != nil {
		t.Fatal(err)
	}
	if val != "https://getlate.dev/api/v1" {
		t.Fatalf("unexpected value: %v", val)
	}
}

func TestGetByPath_Unknown(t *testing.T) {
	if _, err := GetByPath(Defaults(), "getlate.nope"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestSetByPath_Coercion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "server.port", "9100"); err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9100 {
		t.Fatalf("expected 9100, got %d", cfg.Server.Port)
	}

	if err := SetByPath(cfg, "getlate.simulateUnsupported", "false"); err != nil {
		t.Fatal(err)
	}
	if cfg.GetLate.SimulateUnsupported {
		t.Fatal("expected false after set")
	}
}

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.GetLate.APIKey = "sk_abcdefghijklmnop"
	cfg.Notify.Token = "123:short"

	out := Sanitize(cfg)
	if out.GetLate.APIKey == cfg.GetLate.APIKey {
		t.Fatal("api key should be masked")
	}
	if !strings.HasPrefix(out.GetLate.APIKey, "sk_a") {
		t.Fatalf("mask should keep prefix, got %q", out.GetLate.APIKey)
	}
	if out.Notify.Token != "***" {
		t.Fatalf("short secret should be fully masked, got %q", out.Notify.Token)
	}
	// original untouched
	if cfg.GetLate.APIKey != "sk_abcdefghijklmnop" {
		t.Fatal("Sanitize must not mutate the original")
	}
}
