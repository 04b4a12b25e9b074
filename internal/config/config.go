package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Defaults for a fresh install
const (
	DefaultUsername     = "me@example.com"
	DefaultPasswordEnv  = "WHOOP_PASSWORD"
	DefaultBaseURL      = "https://api-7.whoop.com"
	DefaultWindowStart  = "2000-01-01T00:00:00.000Z"
	DefaultWindowEnd    = "2030-01-01T00:00:00.000Z"
	DefaultTimeout      = 30 * time.Second
	DefaultPort         = 8080
	DefaultDBPath       = "./sleepdash.db"
	DefaultAccessEnv    = "SLEEPDASH_ACCESS_HASH"
	DefaultTitle        = "Sleep Analysis"
	DefaultDefaultStart = "2021-04-11"
)

var validate = validator.New()

// Config holds the CLI and server configuration
type Config struct {
	Whoop     WhoopConfig     `yaml:"whoop"`
	Server    ServerConfig    `yaml:"server"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Log       LogConfig       `yaml:"log"`
}

// WhoopConfig describes the vendor account and the fetch window
type WhoopConfig struct {
	Username string `yaml:"username" validate:"required"`

	// PasswordEnv names the environment variable holding the password.
	// The password itself is never written to the config file.
	PasswordEnv string        `yaml:"password_env" validate:"required"`
	BaseURL     string        `yaml:"base_url" validate:"required,url"`
	Start       string        `yaml:"start" validate:"required"`
	End         string        `yaml:"end" validate:"required"`
	Timeout     time.Duration `yaml:"timeout" validate:"gte=0"`
}

// ServerConfig holds dashboard server settings
type ServerConfig struct {
	Port    int    `yaml:"port" validate:"min=1,max=65535"`
	DBPath  string `yaml:"db_path" validate:"required"`
	Offline bool   `yaml:"offline"`

	// AccessHashEnv names the environment variable holding a bcrypt hash.
	// When that variable is empty the dashboard is open.
	AccessHashEnv string `yaml:"access_hash_env"`
	SecureCookie  bool   `yaml:"secure_cookie"`
}

// DashboardConfig holds page settings
type DashboardConfig struct {
	Title        string `yaml:"title" validate:"required"`
	DefaultStart string `yaml:"default_start" validate:"required,datetime=2006-01-02"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level       string `yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

// Password returns the WHOOP password resolved from the environment
func (w WhoopConfig) Password() string {
	return os.Getenv(w.PasswordEnv)
}

// Window returns the parsed fetch window
func (w WhoopConfig) Window() (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, w.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("whoop.start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, w.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("whoop.end: %w", err)
	}
	return start, end, nil
}

// AccessHash returns the dashboard access hash resolved from the environment
func (s ServerConfig) AccessHash() string {
	if s.AccessHashEnv == "" {
		return ""
	}
	return os.Getenv(s.AccessHashEnv)
}

// DefaultPath returns the path to the config file in the home directory
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".sleepdash.yaml"), nil
}

// Defaults returns a Config populated with default values
func Defaults() *Config {
	return &Config{
		Whoop: WhoopConfig{
			Username:    DefaultUsername,
			PasswordEnv: DefaultPasswordEnv,
			BaseURL:     DefaultBaseURL,
			Start:       DefaultWindowStart,
			End:         DefaultWindowEnd,
			Timeout:     DefaultTimeout,
		},
		Server: ServerConfig{
			Port:          DefaultPort,
			DBPath:        DefaultDBPath,
			AccessHashEnv: DefaultAccessEnv,
		},
		Dashboard: DashboardConfig{
			Title:        DefaultTitle,
			DefaultStart: DefaultDefaultStart,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the configuration at path (DefaultPath when empty). A missing
// file yields the defaults. PORT and DB_PATH override the file.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Save saves the configuration to path (DefaultPath when empty)
func Save(path string, cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Validate checks field constraints and the fetch window ordering
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	start, end, err := cfg.Whoop.Window()
	if err != nil {
		return err
	}
	if !start.Before(end) {
		return fmt.Errorf("whoop.start %s must be before whoop.end %s", cfg.Whoop.Start, cfg.Whoop.End)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT %q is not a number", v)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Server.DBPath = v
	}
	return nil
}
