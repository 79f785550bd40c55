package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/callaudit/callaudit/internal/gaps"
)

// Config holds all runtime configuration for the callaudit server.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir          string
	HTTPPort         int
	PostgresDSN      string // when set, Postgres replaces the embedded SQLite store
	LogLevel         string
	LogFormat        string // log output format: "text" or "json"
	CORSOrigins      string
	JWTSecret        string // hex-encoded 32-byte secret for dashboard JWT signing
	OfficeStart      string // default office-hours window start, "HH:MM"
	OfficeEnd        string // default office-hours window end, "HH:MM"
	GapThresholdMin  int    // default minimum gap length, minutes
	PersistBatchSize int    // records per insert transaction
	IssueTokenFor    string // when set, print a dashboard token for this agency and exit
}

// defaults
const (
	defaultDataDir      = "./data"
	defaultHTTPPort     = 8080
	defaultLogLevel     = "info"
	defaultLogFormat    = "text"
	defaultOfficeStart  = "08:00"
	defaultOfficeEnd    = "18:00"
	defaultGapThreshold = 15
	defaultBatchSize    = 50
)

// envPrefix is the prefix for all callaudit environment variables.
const envPrefix = "CALLAUDIT_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("callaudit", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for the embedded database")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP server listen port")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", "", "Postgres connection string (uses embedded SQLite when empty)")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.CORSOrigins, "cors-origins", "", "comma-separated list of allowed CORS origins (use * for all)")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "hex-encoded 32-byte secret for JWT signing (auto-generated if empty)")
	fs.StringVar(&cfg.OfficeStart, "office-start", defaultOfficeStart, "default office-hours window start (HH:MM)")
	fs.StringVar(&cfg.OfficeEnd, "office-end", defaultOfficeEnd, "default office-hours window end (HH:MM)")
	fs.IntVar(&cfg.GapThresholdMin, "gap-threshold", defaultGapThreshold, "default minimum reportable gap length in minutes")
	fs.IntVar(&cfg.PersistBatchSize, "persist-batch-size", defaultBatchSize, "call records per insert transaction")
	fs.StringVar(&cfg.IssueTokenFor, "issue-token", "", "print a signed dashboard token for the given agency ID and exit")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the command line.
	// CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	// Track which flags were explicitly set via CLI.
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	// Map of flag name to env var name.
	envMap := map[string]string{
		"data-dir":           envPrefix + "DATA_DIR",
		"http-port":          envPrefix + "HTTP_PORT",
		"postgres-dsn":       envPrefix + "POSTGRES_DSN",
		"log-level":          envPrefix + "LOG_LEVEL",
		"log-format":         envPrefix + "LOG_FORMAT",
		"cors-origins":       envPrefix + "CORS_ORIGINS",
		"jwt-secret":         envPrefix + "JWT_SECRET",
		"office-start":       envPrefix + "OFFICE_START",
		"office-end":         envPrefix + "OFFICE_END",
		"gap-threshold":      envPrefix + "GAP_THRESHOLD",
		"persist-batch-size": envPrefix + "PERSIST_BATCH_SIZE",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "data-dir":
			cfg.DataDir = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "postgres-dsn":
			cfg.PostgresDSN = val
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		case "cors-origins":
			cfg.CORSOrigins = val
		case "jwt-secret":
			cfg.JWTSecret = val
		case "office-start":
			cfg.OfficeStart = val
		case "office-end":
			cfg.OfficeEnd = val
		case "gap-threshold":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.GapThresholdMin = v
			}
		case "persist-batch-size":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.PersistBatchSize = v
			}
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	if _, err := c.OfficeHours(); err != nil {
		return err
	}
	if c.GapThresholdMin < 0 {
		return fmt.Errorf("gap-threshold must be non-negative, got %d", c.GapThresholdMin)
	}
	if c.PersistBatchSize < 1 {
		return fmt.Errorf("persist-batch-size must be at least 1, got %d", c.PersistBatchSize)
	}

	return nil
}

// OfficeHours returns the configured default office-hours window.
func (c *Config) OfficeHours() (gaps.OfficeHours, error) {
	w, err := gaps.ParseOfficeHours(c.OfficeStart, c.OfficeEnd)
	if err != nil {
		return gaps.OfficeHours{}, fmt.Errorf("office-start/office-end: %w", err)
	}
	return w, nil
}

// JWTSecretBytes returns the decoded 32-byte JWT signing secret.
// If no secret is configured, it generates a random 32-byte key and stores
// the hex-encoded value back in the config for the process lifetime.
func (c *Config) JWTSecretBytes() ([]byte, error) {
	if c.JWTSecret == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating jwt secret: %w", err)
		}
		c.JWTSecret = hex.EncodeToString(key)
		slog.Warn("no jwt-secret configured, generated ephemeral key (tokens will not survive restart)")
		return key, nil
	}
	key, err := hex.DecodeString(c.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("decoding jwt secret: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("jwt secret must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
