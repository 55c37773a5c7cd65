package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DEFAULT_GWP_VERSION", "")
	t.Setenv("TELEMETRY_ENABLED", "")

	cfg := Load()
	if cfg.LogLevel != "INFO" {
		t.Errorf("expected INFO, got %q", cfg.LogLevel)
	}
	if cfg.DatabaseDriver != "sqlite" {
		t.Errorf("expected sqlite driver, got %q", cfg.DatabaseDriver)
	}
	if cfg.DefaultGWPVersion != "IPCC_AR5" {
		t.Errorf("expected IPCC_AR5, got %q", cfg.DefaultGWPVersion)
	}
	if cfg.TelemetryEnabled {
		t.Error("telemetry should default to disabled")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://cl@localhost:5432/cl?sslmode=disable")
	t.Setenv("DEFAULT_GWP_VERSION", "IPCC_AR6")
	t.Setenv("TELEMETRY_ENABLED", "true")
	t.Setenv("OTLP_ENDPOINT", "collector:4317")

	cfg := Load()
	if cfg.LogLevel != "DEBUG" {
		t.Errorf("expected DEBUG, got %q", cfg.LogLevel)
	}
	if cfg.DatabaseDriver != "postgres" {
		t.Errorf("expected postgres, got %q", cfg.DatabaseDriver)
	}
	if cfg.DatabaseURL != "postgres://cl@localhost:5432/cl?sslmode=disable" {
		t.Errorf("unexpected database url %q", cfg.DatabaseURL)
	}
	if cfg.DefaultGWPVersion != "IPCC_AR6" {
		t.Errorf("expected IPCC_AR6, got %q", cfg.DefaultGWPVersion)
	}
	if !cfg.TelemetryEnabled {
		t.Error("telemetry should be enabled")
	}
	if cfg.OTLPEndpoint != "collector:4317" {
		t.Errorf("unexpected OTLP endpoint %q", cfg.OTLPEndpoint)
	}
}
