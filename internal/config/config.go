// Package config resolves runtime configuration: defaults, then an optional
// YAML file, then environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Directory drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the resolved runtime configuration.
type Config struct {
	Host string
	Port int

	CachePath string

	DirectoryDriver       string
	DirectoryDSN          string
	DirectoryTimeout      time.Duration
	DirectoryPollInterval time.Duration

	GoogleClientID             string
	GoogleClientSecret         string
	GoogleForceRefreshRotation bool
	GoogleCallbackPort         int
	GoogleCallbackTimeout      time.Duration
	GoogleOpenBrowser          bool

	DeviceIPLookupURL   string
	DeviceGeoLookupURL  string
	DeviceLookupTimeout time.Duration

	PendingTTL      time.Duration
	PendingRedisURL string

	LogLevel  string
	LogFormat string
}

// fileConfig mirrors the YAML schema of homeauth.yaml.
type fileConfig struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`
	Cache struct {
		Path string `yaml:"path"`
	} `yaml:"cache"`
	Directory struct {
		Driver       string `yaml:"driver"`
		DSN          string `yaml:"dsn"`
		Timeout      string `yaml:"timeout"`
		PollInterval string `yaml:"poll_interval"`
	} `yaml:"directory"`
	Google struct {
		ClientID                  string `yaml:"client_id"`
		ClientSecret              string `yaml:"client_secret"`
		ForceRefreshTokenRotation *bool  `yaml:"force_refresh_token_rotation"`
		CallbackPort              int    `yaml:"callback_port"`
		CallbackTimeout           string `yaml:"callback_timeout"`
		OpenBrowser               *bool  `yaml:"open_browser"`
	} `yaml:"google"`
	Device struct {
		IPLookupURL   string `yaml:"ip_lookup_url"`
		GeoLookupURL  string `yaml:"geo_lookup_url"`
		LookupTimeout string `yaml:"lookup_timeout"`
	} `yaml:"device"`
	Session struct {
		PendingTTL string `yaml:"pending_ttl"`
		RedisURL   string `yaml:"redis_url"`
	} `yaml:"session"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Host:                       "127.0.0.1",
		Port:                       8087,
		CachePath:                  "homeauth.db",
		DirectoryDriver:            DriverSQLite,
		DirectoryDSN:               "homeauth-directory.db",
		DirectoryTimeout:           10 * time.Second,
		DirectoryPollInterval:      5 * time.Second,
		GoogleForceRefreshRotation: true,
		GoogleCallbackPort:         51121,
		GoogleCallbackTimeout:      5 * time.Minute,
		GoogleOpenBrowser:          true,
		DeviceIPLookupURL:          "https://api.ipify.org?format=json",
		DeviceGeoLookupURL:         "https://ipapi.co/{ip}/json/",
		DeviceLookupTimeout:        3 * time.Second,
		PendingTTL:                 5 * time.Minute,
		LogLevel:                   "info",
		LogFormat:                  "text",
	}
}

// Load resolves configuration in priority order: defaults -> file -> env.
// A missing file is not an error; an unparsable one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := cfg.applyFile(raw); err != nil {
				return Config{}, err
			}
		case !os.IsNotExist(err):
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(raw []byte) error {
	var f fileConfig
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setString(&c.Host, f.Server.Host)
	if f.Server.Port > 0 {
		c.Port = f.Server.Port
	}
	setString(&c.CachePath, f.Cache.Path)

	setString(&c.DirectoryDriver, strings.ToLower(f.Directory.Driver))
	setString(&c.DirectoryDSN, f.Directory.DSN)
	if err := setDuration(&c.DirectoryTimeout, "directory.timeout", f.Directory.Timeout); err != nil {
		return err
	}
	if err := setDuration(&c.DirectoryPollInterval, "directory.poll_interval", f.Directory.PollInterval); err != nil {
		return err
	}

	setString(&c.GoogleClientID, f.Google.ClientID)
	setString(&c.GoogleClientSecret, f.Google.ClientSecret)
	if f.Google.ForceRefreshTokenRotation != nil {
		c.GoogleForceRefreshRotation = *f.Google.ForceRefreshTokenRotation
	}
	if f.Google.CallbackPort > 0 {
		c.GoogleCallbackPort = f.Google.CallbackPort
	}
	if err := setDuration(&c.GoogleCallbackTimeout, "google.callback_timeout", f.Google.CallbackTimeout); err != nil {
		return err
	}
	if f.Google.OpenBrowser != nil {
		c.GoogleOpenBrowser = *f.Google.OpenBrowser
	}

	setString(&c.DeviceIPLookupURL, f.Device.IPLookupURL)
	setString(&c.DeviceGeoLookupURL, f.Device.GeoLookupURL)
	if err := setDuration(&c.DeviceLookupTimeout, "device.lookup_timeout", f.Device.LookupTimeout); err != nil {
		return err
	}

	if err := setDuration(&c.PendingTTL, "session.pending_ttl", f.Session.PendingTTL); err != nil {
		return err
	}
	setString(&c.PendingRedisURL, f.Session.RedisURL)

	setString(&c.LogLevel, f.Logging.Level)
	setString(&c.LogFormat, f.Logging.Format)
	return nil
}

func (c *Config) applyEnv() {
	c.Host = envOrDefault("HOST", c.Host)
	c.Port = envInt("PORT", c.Port)
	c.CachePath = envOrDefault("HOMEAUTH_CACHE_PATH", c.CachePath)
	c.DirectoryDriver = strings.ToLower(envOrDefault("HOMEAUTH_DIRECTORY_DRIVER", c.DirectoryDriver))
	c.DirectoryDSN = envOrDefault("HOMEAUTH_DIRECTORY_DSN", c.DirectoryDSN)
	c.DirectoryTimeout = envSeconds("HOMEAUTH_DIRECTORY_TIMEOUT_SECONDS", c.DirectoryTimeout)
	c.GoogleClientID = envOrDefault("GOOGLE_CLIENT_ID", c.GoogleClientID)
	c.GoogleClientSecret = envOrDefault("GOOGLE_CLIENT_SECRET", c.GoogleClientSecret)
	c.GoogleForceRefreshRotation = envBool("HOMEAUTH_GOOGLE_FORCE_ROTATION", c.GoogleForceRefreshRotation)
	c.GoogleOpenBrowser = envBool("HOMEAUTH_OPEN_BROWSER", c.GoogleOpenBrowser)
	c.PendingTTL = envSeconds("HOMEAUTH_PENDING_TTL_SECONDS", c.PendingTTL)
	c.PendingRedisURL = envOrDefault("HOMEAUTH_REDIS_URL", c.PendingRedisURL)
	c.LogLevel = envOrDefault("HOMEAUTH_LOG_LEVEL", c.LogLevel)
	c.LogFormat = envOrDefault("HOMEAUTH_LOG_FORMAT", c.LogFormat)
}

// Validate rejects configurations the app cannot start with.
func (c Config) Validate() error {
	switch c.DirectoryDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported directory driver %q", c.DirectoryDriver)
	}
	if strings.TrimSpace(c.DirectoryDSN) == "" {
		return fmt.Errorf("missing directory dsn")
	}
	if strings.TrimSpace(c.CachePath) == "" {
		return fmt.Errorf("missing cache path")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.PendingTTL <= 0 {
		return fmt.Errorf("session.pending_ttl must be positive")
	}
	return nil
}

// Addr is the local API listen address.
func (c Config) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = d
	return nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envSeconds(name string, fallback time.Duration) time.Duration {
	secs := envInt(name, -1)
	if secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

func envBool(name string, fallback bool) bool {
	switch os.Getenv(name) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}
