package app

import (
	"testing"
	"time"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STR", "  value  ")
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_BOOL_BAD", "yep")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_INT_NEG", "-3")
	t.Setenv("TEST_DUR", "90s")
	t.Setenv("TEST_CSV", "a, b,,c ")

	if got := EnvString("TEST_STR", "def"); got != "value" {
		t.Fatalf("EnvString: %q", got)
	}
	if got := EnvString("TEST_MISSING", "def"); got != "def" {
		t.Fatalf("EnvString default: %q", got)
	}

	if !EnvBool("TEST_BOOL", false) {
		t.Fatalf("EnvBool: want true")
	}
	if !EnvBool("TEST_BOOL_BAD", true) {
		t.Fatalf("EnvBool must fall back on parse error")
	}

	if got := EnvInt("TEST_INT", 1); got != 42 {
		t.Fatalf("EnvInt: %d", got)
	}
	if got := EnvInt("TEST_INT_NEG", 7); got != 7 {
		t.Fatalf("EnvInt must reject non-positive values: %d", got)
	}

	if got := EnvDuration("TEST_DUR", time.Second); got != 90*time.Second {
		t.Fatalf("EnvDuration: %v", got)
	}

	got := EnvCSV("TEST_CSV", "x")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("EnvCSV: %v", got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"INKWELL_HTTP_ADDR", "INKWELL_LOG_LEVEL", "INKWELL_DATABASE_URL",
		"INKWELL_READINESS_REQUIRE_DB", "INKWELL_REQUIRE_TOKEN_HMAC",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	if cfg.HTTPAddr != "0.0.0.0:8080" || cfg.LogLevel != "info" {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.DatabaseURL != "" || cfg.ReadinessRequireDB || cfg.RequireTokenHMAC {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.ReadTimeout != 15*time.Second || cfg.IdleTimeout != 60*time.Second {
		t.Fatalf("timeouts: %+v", cfg)
	}
}
