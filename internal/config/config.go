// Package config loads the cardvault configuration file.
package config

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Scryfall ScryfallConfig `toml:"scryfall"`
	Log      LogConfig      `toml:"log"`
	User     UserConfig     `toml:"user"`
	Backup   BackupConfig   `toml:"backup"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
	RequestTimeout string   `toml:"request_timeout"` // e.g. "30s"
}

// DatabaseConfig contains SQLite settings.
type DatabaseConfig struct {
	Path        string `toml:"path"`
	AutoMigrate bool   `toml:"auto_migrate"`
	BusyTimeout string `toml:"busy_timeout"`
}

// ScryfallConfig contains card metadata service settings.
type ScryfallConfig struct {
	Enabled   bool    `toml:"enabled"`
	BaseURL   string  `toml:"base_url"`
	RateLimit float64 `toml:"rate_limit"` // requests per second
	Timeout   string  `toml:"timeout"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text or json
}

// UserConfig contains settings for single-user CLI commands.
type UserConfig struct {
	DefaultID string `toml:"default_id"`
}

// BackupConfig contains database backup settings.
type BackupConfig struct {
	Dir         string `toml:"dir"`          // empty means next to the database
	Interval    string `toml:"interval"`     // e.g. "24h"; empty disables scheduled backups
	Keep        int    `toml:"keep"`         // 0 keeps every backup
	PasswordEnv string `toml:"password_env"` // environment variable holding the encryption password
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RequestTimeout: "30s",
		},
		Database: DatabaseConfig{
			Path:        defaultDatabasePath(),
			AutoMigrate: true,
			BusyTimeout: "5s",
		},
		Scryfall: ScryfallConfig{
			Enabled:   true,
			BaseURL:   "https://api.scryfall.com",
			RateLimit: 10,
			Timeout:   "30s",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		User: UserConfig{
			DefaultID: "local",
		},
		Backup: BackupConfig{
			Keep:        7,
			PasswordEnv: "CARDVAULT_BACKUP_PASSWORD",
		},
	}
}

func configDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".cardvault"
	}
	return filepath.Join(homeDir, ".cardvault")
}

func defaultDatabasePath() string {
	return filepath.Join(configDir(), "cardvault.db")
}

// Path returns the default configuration file path.
func Path() string {
	return filepath.Join(configDir(), "config.toml")
}

// Load loads the configuration from the default path. Returns the default
// config if the file doesn't exist.
func Load() (*Config, error) {
	return LoadFrom(Path())
}

// LoadFrom loads the configuration from path. Keys missing from the file
// keep their default values.
func LoadFrom(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return config, nil
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if _, err := time.ParseDuration(c.Server.RequestTimeout); err != nil {
		return fmt.Errorf("invalid request timeout %q: %w", c.Server.RequestTimeout, err)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if _, err := time.ParseDuration(c.Database.BusyTimeout); err != nil {
		return fmt.Errorf("invalid busy timeout %q: %w", c.Database.BusyTimeout, err)
	}
	if c.Scryfall.Enabled {
		if c.Scryfall.RateLimit <= 0 {
			return fmt.Errorf("scryfall rate limit must be positive: %v", c.Scryfall.RateLimit)
		}
		if _, err := time.ParseDuration(c.Scryfall.Timeout); err != nil {
			return fmt.Errorf("invalid scryfall timeout %q: %w", c.Scryfall.Timeout, err)
		}
	}
	if c.Backup.Interval != "" {
		d, err := time.ParseDuration(c.Backup.Interval)
		if err != nil {
			return fmt.Errorf("invalid backup interval %q: %w", c.Backup.Interval, err)
		}
		if d < time.Minute {
			return fmt.Errorf("backup interval must be at least 1m: %s", c.Backup.Interval)
		}
	}
	if c.Backup.Keep < 0 {
		return fmt.Errorf("backup keep cannot be negative: %d", c.Backup.Keep)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q: must be text or json", c.Log.Format)
	}
	return nil
}

// GetRequestTimeout returns the request timeout as a duration.
func (c *Config) GetRequestTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Server.RequestTimeout)
	return d
}

// GetBusyTimeout returns the database busy timeout as a duration.
func (c *Config) GetBusyTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Database.BusyTimeout)
	return d
}

// GetScryfallTimeout returns the Scryfall request timeout as a duration.
func (c *Config) GetScryfallTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Scryfall.Timeout)
	return d
}

// GetBackupInterval returns the scheduled backup interval, or zero when
// scheduled backups are disabled.
func (c *Config) GetBackupInterval() time.Duration {
	d, _ := time.ParseDuration(c.Backup.Interval)
	return d
}

// BackupPassword returns the backup encryption password from the
// configured environment variable, or "" when backups are unencrypted.
func (c *Config) BackupPassword() string {
	if c.Backup.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(c.Backup.PasswordEnv)
}

// SlogLevel parses the configured log level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(l.Level))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", l.Level, err)
	}
	return level, nil
}

// Watch reloads the file at path whenever it is written and passes every
// valid result to onChange. It blocks until ctx is cancelled. The parent
// directory is watched so that editors which replace the file on save are
// still seen.
func Watch(ctx context.Context, path string, onChange func(*Config)) (err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer func() {
		if closeErr := watcher.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			config, err := LoadFrom(path)
			if err != nil {
				log.Printf("Config reload failed: %v", err)
				continue
			}
			if err := config.Validate(); err != nil {
				log.Printf("Ignoring invalid config: %v", err)
				continue
			}
			onChange(config)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("Config watcher error: %v", err)
		}
	}
}
