// Package config handles CLI arguments and TOML configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	toml "github.com/pelletier/go-toml/v2"
)

// ErrNoPort is returned when the positional port argument is missing.
var ErrNoPort = errors.New("no port argument provided")

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/oauth-token-proxy/config.toml",
	"configs/config.toml",
}

// reservedAdminRoutes cannot be used as the metrics path.
var reservedAdminRoutes = []string{"/healthz", "/proxy/status"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Port         string           `kong:"arg,optional,help='TCP port to listen on.'"`
	Config       string           `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	SettingsDir  string           `kong:"help='Directory holding the Settings source (overrides config).',env='SETTINGS_DIR'"`
	SettingsName string           `kong:"help='Base name of the Settings source (overrides config).',env='SETTINGS_NAME'"`
	LogLevel     string           `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	Version      kong.VersionFlag `kong:"help='Print version and exit.'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Upstream UpstreamConfig `toml:"upstream"`
	Settings SettingsConfig `toml:"settings"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Admin    AdminConfig    `toml:"admin"`

	filePath string // resolved config file path, empty when running on defaults
}

// ServerConfig holds public listener settings. The port always comes from the CLI.
type ServerConfig struct {
	Host         string     `toml:"host"`
	Port         uint16     `toml:"-"`
	BodyMaxBytes int64      `toml:"body_max_bytes"`
	CORS         CORSConfig `toml:"cors"`
}

// CORSConfig controls cross-origin access for browser clients.
type CORSConfig struct {
	Enabled        bool     `toml:"enabled"`
	AllowedOrigins []string `toml:"allowed_origins"`
	MaxAge         int      `toml:"max_age"`
}

// UpstreamConfig holds token endpoint connection settings.
type UpstreamConfig struct {
	TimeoutSeconds   int   `toml:"timeout_seconds"`
	IdleConnections  int   `toml:"idle_connections"`
	MaxResponseBytes int64 `toml:"max_response_bytes"`
}

// SettingsConfig locates the Settings source holding client_secret and token_url.
type SettingsConfig struct {
	Name  string `toml:"name"`
	Dir   string `toml:"dir"`
	Cache bool   `toml:"cache"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// AdminConfig holds the optional health/metrics listener.
type AdminConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// ParsePort parses the positional port argument as an unsigned 16-bit integer.
func ParsePort(arg string) (uint16, error) {
	if arg == "" {
		return 0, ErrNoPort
	}
	p, err := strconv.ParseUint(arg, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port argument %q: %w", arg, err)
	}
	return uint16(p), nil
}

// Load reads the optional TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/oauth-token-proxy/config.toml then configs/config.toml, and falls back
// to defaults if neither exists.
func Load(cli *CLI) (*Config, error) {
	port, err := ParsePort(cli.Port)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var cfg Config
	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.Server.Port = port
	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// FilePath returns the config file that was loaded, or "" when defaults are in use.
func (c *Config) FilePath() string {
	return c.filePath
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.SettingsDir != "" {
		c.Settings.Dir = cli.SettingsDir
	}
	if cli.SettingsName != "" {
		c.Settings.Name = cli.SettingsName
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Server.CORS.MaxAge < 0 {
		return fmt.Errorf("server.cors.max_age must be non-negative; got %d", c.Server.CORS.MaxAge)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Upstream.MaxResponseBytes < 0 {
		return fmt.Errorf("upstream.max_response_bytes must be non-negative; got %d", c.Upstream.MaxResponseBytes)
	}
	if strings.ContainsAny(c.Settings.Name, `/\`) {
		return fmt.Errorf("settings.name must be a base name without directories; got %q", c.Settings.Name)
	}

	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range reservedAdminRoutes {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	if c.Admin.Enabled && c.Admin.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Admin.Addr); err != nil {
			return fmt.Errorf("admin.addr must be host:port; got %q: %w", c.Admin.Addr, err)
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// TOML cannot distinguish an explicit 0 from an omitted key, so zero means "unset".
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 1 << 20
	}
	if len(c.Server.CORS.AllowedOrigins) == 0 {
		c.Server.CORS.AllowedOrigins = []string{"*"}
	}
	if c.Server.CORS.MaxAge == 0 {
		c.Server.CORS.MaxAge = 300
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 30
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Upstream.MaxResponseBytes == 0 {
		c.Upstream.MaxResponseBytes = 1 << 20
	}
	if c.Settings.Name == "" {
		c.Settings.Name = "Settings"
	}
	if c.Settings.Dir == "" {
		c.Settings.Dir = "."
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Admin.Addr == "" {
		c.Admin.Addr = "127.0.0.1:9090"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the public listen address as host:port.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}
