// Package config provides centralized configuration management for the memos server.
// Values come from built-in defaults, an optional YAML file, environment variables
// and CLI flags, in increasing order of precedence.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kuitang/memos/internal/memos"
	"github.com/kuitang/memos/internal/obs"
	"github.com/kuitang/memos/internal/ratelimit"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	ListenAddr      string        `yaml:"listen_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	LogLevel        string        `yaml:"log_level"`

	// Store
	IDPolicy string `yaml:"id_policy"`

	// MCP endpoint at /mcp
	MCPEnabled bool `yaml:"mcp_enabled"`

	// Rate limiting
	RateLimitConfig ratelimit.Config `yaml:"rate_limit"`

	// ConfigFile is the YAML file the values were read from, if any.
	ConfigFile string `yaml:"-"`
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		ListenAddr:      ":8080",
		ShutdownTimeout: 10 * time.Second,
		MaxBodyBytes:    1 << 20,
		LogLevel:        "info",
		IDPolicy:        string(memos.PolicySequence),
		MCPEnabled:      true,
		RateLimitConfig: ratelimit.DefaultConfig,
	}
}

// ParseFlags parses --config and --addr from the process arguments.
func ParseFlags() (configPath, addr string) {
	configPath, addr, err := parseFlagSet(flag.CommandLine, os.Args[1:])
	if err != nil {
		// flag.CommandLine uses ExitOnError, so this is unreachable in practice.
		panic(err)
	}
	return configPath, addr
}

func parseFlagSet(fs *flag.FlagSet, args []string) (configPath, addr string, err error) {
	fs.StringVar(&configPath, "config", "", "Path to a YAML config file (overrides CONFIG_FILE env var)")
	fs.StringVar(&addr, "addr", "", "Listen address (default :8080, overrides LISTEN_ADDR env var)")
	if err := fs.Parse(args); err != nil {
		return "", "", err
	}
	return configPath, addr, nil
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current values; unknown keys are an error.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadConfig builds the configuration. configPath falls back to the
// CONFIG_FILE env var; addr, when non-empty, overrides everything else.
func LoadConfig(configPath, addr string) (*Config, error) {
	cfg := Defaults()

	if configPath == "" {
		configPath = strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	}
	if configPath != "" {
		if err := LoadFile(configPath, &cfg); err != nil {
			return nil, err
		}
		cfg.ConfigFile = configPath
	}

	// Server settings
	cfg.ListenAddr = getEnvOrDefault("LISTEN_ADDR", cfg.ListenAddr)
	if addr != "" {
		cfg.ListenAddr = addr
	}
	cfg.ShutdownTimeout = parseDurationOrDefault("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.MaxBodyBytes = parseInt64OrDefault("MAX_BODY_BYTES", cfg.MaxBodyBytes)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)

	cfg.IDPolicy = getEnvOrDefault("ID_POLICY", cfg.IDPolicy)
	cfg.MCPEnabled = parseBoolOrDefault("MCP_ENABLED", cfg.MCPEnabled)

	// Rate limiting
	cfg.RateLimitConfig.RPS = parseFloat64OrDefault("RATE_LIMIT_RPS", cfg.RateLimitConfig.RPS)
	cfg.RateLimitConfig.Burst = parseIntOrDefault("RATE_LIMIT_BURST", cfg.RateLimitConfig.Burst)
	cfg.RateLimitConfig.CleanupInterval = parseDurationOrDefault("RATE_LIMIT_CLEANUP_INTERVAL", cfg.RateLimitConfig.CleanupInterval)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that all configuration values are usable.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.ListenAddr) == "" {
		errs = append(errs, "LISTEN_ADDR must not be empty")
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, "SHUTDOWN_TIMEOUT must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, "MAX_BODY_BYTES must be positive")
	}
	if _, err := obs.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, "LOG_LEVEL: "+err.Error())
	}
	if _, err := memos.ParseIDPolicy(c.IDPolicy); err != nil {
		errs = append(errs, "ID_POLICY: "+err.Error())
	}

	if c.RateLimitConfig.RPS <= 0 {
		errs = append(errs, "RATE_LIMIT_RPS must be positive")
	}
	if c.RateLimitConfig.Burst <= 0 {
		errs = append(errs, "RATE_LIMIT_BURST must be positive")
	}
	if c.RateLimitConfig.CleanupInterval <= 0 {
		errs = append(errs, "RATE_LIMIT_CLEANUP_INTERVAL must be positive")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// Policy returns the parsed id policy. Only meaningful after Validate.
func (c *Config) Policy() memos.IDPolicy {
	p, _ := memos.ParseIDPolicy(c.IDPolicy)
	return p
}

// PrintStartupSummary prints a human-readable summary of the configuration to w.
func (c *Config) PrintStartupSummary(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "memos server starting...")
	if c.ConfigFile != "" {
		fmt.Fprintf(w, "  Config:  %s\n", c.ConfigFile)
	}
	fmt.Fprintf(w, "  Listen:  %s\n", c.ListenAddr)
	fmt.Fprintf(w, "  Ids:     %s\n", c.Policy())
	if c.MCPEnabled {
		fmt.Fprintln(w, "  MCP:     enabled at /mcp")
	} else {
		fmt.Fprintln(w, "  MCP:     disabled")
	}
	fmt.Fprintf(w, "  Limits:  %.0f rps, burst %d per client\n", c.RateLimitConfig.RPS, c.RateLimitConfig.Burst)
	fmt.Fprintln(w, "")
}

// Helper functions for parsing environment variables. Unparseable values fall
// back to the default so a typo never takes the server down.

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseIntOrDefault(key string, defaultValue int) int {
	parsed, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseInt64OrDefault(key string, defaultValue int64) int64 {
	parsed, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	parsed, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	parsed, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	parsed, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return parsed
}

// MustLoadConfig loads configuration and panics if validation fails.
func MustLoadConfig(configPath, addr string) *Config {
	cfg, err := LoadConfig(configPath, addr)
	if err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			panic(fmt.Sprintf("Configuration validation failed:\n  - %s", strings.Join(validationErr.Errors, "\n  - ")))
		}
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	return cfg
}
