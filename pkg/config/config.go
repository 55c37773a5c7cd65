package config

import "os"

// Config holds process configuration.
type Config struct {
	LogLevel          string
	DatabaseDriver    string
	DatabaseURL       string
	DefaultGWPVersion string
	SigningPrivatePEM string
	SigningPublicPEM  string
	OTLPEndpoint      string
	TelemetryEnabled  bool
}

// Load loads configuration from environment variables.
func Load() *Config {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	driver := os.Getenv("DATABASE_DRIVER")
	if driver == "" {
		driver = "sqlite"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		// Default to a local SQLite file
		dbURL = "file:carbonledger.db?_pragma=busy_timeout(5000)"
	}

	gwp := os.Getenv("DEFAULT_GWP_VERSION")
	if gwp == "" {
		gwp = "IPCC_AR5"
	}

	otlp := os.Getenv("OTLP_ENDPOINT")
	if otlp == "" {
		otlp = "localhost:4317"
	}

	return &Config{
		LogLevel:          logLevel,
		DatabaseDriver:    driver,
		DatabaseURL:       dbURL,
		DefaultGWPVersion: gwp,
		SigningPrivatePEM: os.Getenv("SIGNING_PRIVATE_KEY_PEM"),
		SigningPublicPEM:  os.Getenv("SIGNING_PUBLIC_KEY_PEM"),
		OTLPEndpoint:      otlp,
		TelemetryEnabled:  os.Getenv("TELEMETRY_ENABLED") == "true",
	}
}
