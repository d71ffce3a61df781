package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "GHIA_"

type Config struct {
	Version   string          `yaml:"version" json:"version"`
	Env       string          `yaml:"env" json:"env" env:"ENV"`
	Server    ServerConfig    `yaml:"server" json:"server" envPrefix:"SERVER_"`
	Storage   StorageConfig   `yaml:"storage" json:"storage" envPrefix:"STORAGE_"`
	Static    StaticConfig    `yaml:"static" json:"static" envPrefix:"STATIC_"`
	Session   SessionConfig   `yaml:"session" json:"session" envPrefix:"SESSION_"`
	Wizard    WizardConfig    `yaml:"wizard" json:"wizard" envPrefix:"WIZARD_"`
	Missions  MissionsConfig  `yaml:"missions" json:"missions" envPrefix:"MISSIONS_"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry" envPrefix:"TELEMETRY_"`
}

type ServerConfig struct {
	Addr              string        `yaml:"addr" json:"addr" env:"ADDR"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" json:"read_header_timeout" env:"READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

type StorageConfig struct {
	// Driver is "file" (agents.json) or "sqlite" (agents.db).
	Driver  string `yaml:"driver" json:"driver" env:"DRIVER"`
	DataDir string `yaml:"data_dir" json:"data_dir" env:"DATA_DIR"`
}

type StaticConfig struct {
	Dir       string `yaml:"dir" json:"dir" env:"DIR"`
	UseDisk   bool   `yaml:"use_disk" json:"use_disk" env:"USE_DISK"`
	AssetsDir string `yaml:"assets_dir" json:"assets_dir" env:"ASSETS_DIR"`
}

type SessionConfig struct {
	CookieName string `yaml:"cookie_name" json:"cookie_name" env:"COOKIE_NAME"`
	// CookieSecure is "true", "false" or empty for auto-detection.
	CookieSecure   string        `yaml:"cookie_secure" json:"cookie_secure" env:"COOKIE_SECURE"`
	CookieSameSite string        `yaml:"cookie_samesite" json:"cookie_samesite" env:"COOKIE_SAMESITE"`
	TTL            time.Duration `yaml:"ttl" json:"ttl" env:"TTL"`
}

type WizardConfig struct {
	// IdleTimeout drops mounted pages not touched for this long.
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout" env:"IDLE_TIMEOUT"`
}

type MissionsConfig struct {
	// CatalogPath replaces the embedded catalog when set.
	CatalogPath string `yaml:"catalog_path" json:"catalog_path" env:"CATALOG_PATH"`
}

type TelemetryConfig struct {
	Limit int `yaml:"limit" json:"limit" env:"LIMIT"`
}

func (s *ServerConfig) ApplyDefaults() {
	if s.Addr == "" {
		s.Addr = ":8080"
	}
	if s.ReadHeaderTimeout == 0 {
		s.ReadHeaderTimeout = 5 * time.Second
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = 10 * time.Second
	}
}

func (s *StorageConfig) ApplyDefaults() {
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	if s.Driver == "" {
		s.Driver = "file"
	}
	if s.DataDir == "" {
		s.DataDir = "data"
	}
}

func (s *StaticConfig) ApplyDefaults() {
	if s.Dir == "" {
		s.Dir = "static"
	}
	if s.AssetsDir == "" {
		s.AssetsDir = "assets"
	}
}

func (s *SessionConfig) ApplyDefaults() {
	if s.CookieName == "" {
		s.CookieName = "ghia_session"
	}
	if s.CookieSameSite == "" {
		s.CookieSameSite = "lax"
	}
	if s.TTL == 0 {
		s.TTL = 365 * 24 * time.Hour
	}
}

func (w *WizardConfig) ApplyDefaults() {
	if w.IdleTimeout == 0 {
		w.IdleTimeout = 2 * time.Hour
	}
}

func (t *TelemetryConfig) ApplyDefaults() {
	if t.Limit == 0 {
		t.Limit = 10000
	}
}

func (c *Config) ApplyDefaults() {
	c.Server.ApplyDefaults()
	c.Storage.ApplyDefaults()
	c.Static.ApplyDefaults()
	c.Session.ApplyDefaults()
	c.Wizard.ApplyDefaults()
	c.Telemetry.ApplyDefaults()
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "file", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	switch strings.ToLower(c.Session.CookieSameSite) {
	case "lax", "strict", "none":
	default:
		errs = append(errs, fmt.Errorf("session.cookie_samesite: %q is not lax, strict or none", c.Session.CookieSameSite))
	}
	switch strings.ToLower(strings.TrimSpace(c.Session.CookieSecure)) {
	case "", "1", "true", "yes", "0", "false", "no":
	default:
		errs = append(errs, fmt.Errorf("session.cookie_secure: %q is not a boolean", c.Session.CookieSecure))
	}
	if c.Wizard.IdleTimeout < 0 {
		errs = append(errs, errors.New("wizard.idle_timeout: must not be negative"))
	}
	return errors.Join(errs...)
}

// Production reports whether Env names a production deployment.
func (c *Config) Production() bool {
	switch strings.ToLower(strings.TrimSpace(c.Env)) {
	case "production", "prod":
		return true
	}
	return false
}

// ApplyEnv overlays GHIA_* environment variables onto c. Unset variables
// leave the current value alone.
func (c *Config) ApplyEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads the YAML file at path (optional when empty), overlays the
// environment, then fills defaults.
func Load(path string) (*Config, error) {
	var r Config
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &r); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := r.ApplyEnv(); err != nil {
		return nil, err
	}
	r.ApplyDefaults()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}
