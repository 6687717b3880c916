// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration.
type Config struct {
	App        AppConfig
	Logger     LoggerConfig
	Server     ServerConfig
	Database   DatabaseConfig
	Progress   ProgressConfig
	Auth       AuthConfig
	Redemption RedemptionConfig
	Vendor     VendorConfig
	Sweeper    SweeperConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `env:"ENV" envDefault:"development"`
	// DataPath holds the database, the session store and the step token key.
	DataPath string `env:"DATA_PATH"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT"` // json or pretty; derived from ENV when empty
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string        `env:"SERVER_PORT" envDefault:"8080"`
	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"2m"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`

	// AdminToken guards the admin API. Required in production.
	AdminToken  string   `env:"ADMIN_TOKEN"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`

	// PublicRPS throttles the public redemption routes per client IP. Zero disables it.
	PublicRPS   float64 `env:"PUBLIC_RPS" envDefault:"2"`
	PublicBurst int     `env:"PUBLIC_BURST" envDefault:"10"`
}

// DatabaseConfig holds durable storage configuration.
type DatabaseConfig struct {
	Path string `env:"DATABASE_PATH"` // default: {data}/invitarr.db
}

// ProgressConfig holds the redemption session store configuration.
type ProgressConfig struct {
	Path       string        `env:"PROGRESS_PATH"` // default: {data}/progress
	InMemory   bool          `env:"PROGRESS_IN_MEMORY"`
	SessionTTL time.Duration `env:"REDEMPTION_SESSION_TTL" envDefault:"24h"`
}

// AuthConfig holds step token configuration.
type AuthConfig struct {
	// StepTokenKey is the hex PASETO v4 symmetric key. Set by auth.LoadOrGenerateKey at startup.
	StepTokenKey      string        `env:"-"`
	StepTokenLifetime time.Duration `env:"STEP_TOKEN_LIFETIME" envDefault:"24h"`
	// IdempotencySecret keys vendor idempotency tokens. Derived from the step key when empty.
	IdempotencySecret string `env:"IDEMPOTENCY_SECRET"`
}

// RedemptionConfig holds account provisioning configuration.
type RedemptionConfig struct {
	MaxAttempts    int           `env:"PROVISION_MAX_ATTEMPTS" envDefault:"3"`
	InitialBackoff time.Duration `env:"PROVISION_INITIAL_BACKOFF" envDefault:"250ms"`
	MaxBackoff     time.Duration `env:"PROVISION_MAX_BACKOFF" envDefault:"2s"`
	Timeout        time.Duration `env:"PROVISION_TIMEOUT" envDefault:"2m"`
}

// VendorConfig holds outbound media server client configuration.
type VendorConfig struct {
	RequestTimeout time.Duration `env:"VENDOR_REQUEST_TIMEOUT" envDefault:"10s"`
	RPS            float64       `env:"VENDOR_RPS" envDefault:"5"`
	Burst          int           `env:"VENDOR_BURST" envDefault:"10"`
	PlexAccountURL string        `env:"PLEX_ACCOUNT_URL" envDefault:"https://plex.tv"`
	PlexClientID   string        `env:"PLEX_CLIENT_ID" envDefault:"invitarr-server"`
}

// SweeperConfig holds expiration sweeper configuration.
type SweeperConfig struct {
	Enabled         bool          `env:"SWEEPER_ENABLED" envDefault:"true"`
	Interval        time.Duration `env:"SWEEPER_INTERVAL" envDefault:"1h"`
	ExpiryAction    string        `env:"SWEEPER_EXPIRY_ACTION" envDefault:"disable"`
	DisableFallback string        `env:"SWEEPER_DISABLE_FALLBACK" envDefault:"report"`
}

// flagEnv maps command-line flags to the environment keys they override.
var flagEnv = []struct {
	name, key, usage string
}{
	{"env", "ENV", "Environment (development, staging, production)"},
	{"log-level", "LOG_LEVEL", "Log level (debug, info, warn, error)"},
	{"data-path", "DATA_PATH", "Base path for data storage"},
	{"port", "SERVER_PORT", "Server port (default: 8080)"},
	{"read-timeout", "SERVER_READ_TIMEOUT", "HTTP read timeout (default: 15s)"},
	{"write-timeout", "SERVER_WRITE_TIMEOUT", "HTTP write timeout (default: 2m)"},
	{"idle-timeout", "SERVER_IDLE_TIMEOUT", "HTTP idle timeout (default: 60s)"},
	{"database-path", "DATABASE_PATH", "Path to the SQLite database"},
	{"progress-path", "PROGRESS_PATH", "Path to the redemption session store"},
	{"sweeper-interval", "SWEEPER_INTERVAL", "Expiration sweep interval (default: 1h)"},
	{"expiry-action", "SWEEPER_EXPIRY_ACTION", "What to do with expired accounts (disable, delete)"},
	{"disable-fallback", "SWEEPER_DISABLE_FALLBACK", "When a vendor cannot disable (delete, report)"},
}

// LoadConfig loads configuration from the process arguments and environment.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:], os.Environ())
}

// Load loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func Load(args, environ []string) (*Config, error) {
	fs := flag.NewFlagSet("invitarr", flag.ContinueOnError)
	values := make(map[string]*string, len(flagEnv))
	for _, f := range flagEnv {
		values[f.key] = fs.String(f.name, "", f.usage)
	}
	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	vars := make(map[string]string, len(environ))

	// .env values only fill keys the environment leaves unset.
	if fileVars, err := loadEnvFile(*envFile); err == nil {
		for k, v := range fileVars {
			vars[k] = v
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", *envFile, err)
	}
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok && v != "" {
			vars[k] = v
		}
	}
	for key, v := range values {
		if *v != "" {
			vars[key] = *v
		}
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	switch c.Logger.Format {
	case "", "json", "pretty":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or pretty)", c.Logger.Format)
	}

	if c.Server.Port == "" {
		return errors.New("SERVER_PORT cannot be empty")
	}
	if c.App.Environment == "production" && len(c.Server.AdminToken) < 16 {
		return errors.New("ADMIN_TOKEN of at least 16 characters is required in production")
	}

	if c.Database.Path == "" {
		return errors.New("database path cannot be empty after expansion")
	}
	if !c.Progress.InMemory && c.Progress.Path == "" {
		return errors.New("progress path cannot be empty after expansion")
	}
	if c.Progress.SessionTTL <= 0 {
		return errors.New("REDEMPTION_SESSION_TTL must be positive")
	}

	if c.Redemption.MaxAttempts < 1 {
		return fmt.Errorf("invalid PROVISION_MAX_ATTEMPTS: %d (must be at least 1)", c.Redemption.MaxAttempts)
	}
	if c.Redemption.Timeout <= 0 {
		return errors.New("PROVISION_TIMEOUT must be positive")
	}

	if c.Server.PublicRPS < 0 || (c.Server.PublicRPS > 0 && c.Server.PublicBurst < 1) {
		return errors.New("PUBLIC_RPS must not be negative and PUBLIC_BURST must be positive")
	}
	if c.Vendor.RPS <= 0 || c.Vendor.Burst < 1 {
		return errors.New("VENDOR_RPS and VENDOR_BURST must be positive")
	}

	switch c.Sweeper.ExpiryAction {
	case "disable", "delete":
	default:
		return fmt.Errorf("invalid expiry action: %s (must be disable or delete)", c.Sweeper.ExpiryAction)
	}
	switch c.Sweeper.DisableFallback {
	case "delete", "report":
	default:
		return fmt.Errorf("invalid disable fallback: %s (must be delete or report)", c.Sweeper.DisableFallback)
	}
	if c.Sweeper.Enabled && c.Sweeper.Interval <= 0 {
		return errors.New("SWEEPER_INTERVAL must be positive")
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandPaths resolves the data directory and the stores inside it.
func (c *Config) expandPaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	if c.App.DataPath, err = expandPath(c.App.DataPath, filepath.Join(homeDir, "Invitarr")); err != nil {
		return err
	}
	if c.Database.Path, err = expandPath(c.Database.Path, filepath.Join(c.App.DataPath, "invitarr.db")); err != nil {
		return err
	}
	if c.Progress.Path, err = expandPath(c.Progress.Path, filepath.Join(c.App.DataPath, "progress")); err != nil {
		return err
	}
	return nil
}

// loadEnvFile reads KEY=value pairs from a .env file (one per line, # for comments).
func loadEnvFile(path string) (map[string]string, error) {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return nil, err
	}
	defer file.Close()

	vars := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		// Remove quotes if present.
		vars[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"'`)
	}

	return vars, scanner.Err()
}
