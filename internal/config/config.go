// Package config loads runtime configuration from a config file, environment
// variables (PDFUPLOADER_ prefix) and command-line flags, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/phsayre/pdf-uploader/internal/logging"
	"github.com/phsayre/pdf-uploader/internal/store"
)

// EnvPrefix is prepended to environment variable names, e.g.
// PDFUPLOADER_DATABASE_URL for database.url.
const EnvPrefix = "PDFUPLOADER"

// Config holds all runtime settings.
type Config struct {
	// Directories.
	WatchDir     string `mapstructure:"watch_dir"`
	ArchiveDir   string `mapstructure:"archive_dir"`
	ErrorDir     string `mapstructure:"error_dir"`
	DuplicateDir string `mapstructure:"duplicate_dir"` // Default: ErrorDir.

	Database  DatabaseConfig  `mapstructure:"database"`
	Transfer  TransferConfig  `mapstructure:"transfer"`
	Mail      MailConfig      `mapstructure:"mail"`
	Log       LogConfig       `mapstructure:"log"`
	Daemon    DaemonConfig    `mapstructure:"daemon"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// DatabaseConfig selects the record store.
type DatabaseConfig struct {
	Driver        string `mapstructure:"driver"`         // postgres or sqlite
	URL           string `mapstructure:"url"`            // DSN or sqlite file path
	Schema        string `mapstructure:"schema"`         // postgres schema of table and function
	ItemsTable    string `mapstructure:"items_table"`    // Default: "items".
	WriteFunction string `mapstructure:"write_function"` // Default: "writeconvertedpdf".
}

// TransferConfig tunes the chunked transfer.
type TransferConfig struct {
	ChunkSize int `mapstructure:"chunk_size"` // Default: 8192.
}

// MailConfig configures operator notification.
type MailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"` // Default: 25.
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	TLS      string `mapstructure:"tls"` // none, opportunistic, mandatory
}

// LogConfig configures log routing.
type LogConfig struct {
	Mode       string `mapstructure:"mode"` // none, file, console, both (or 0-3)
	Level      string `mapstructure:"level"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// DaemonConfig configures repeated passes.
type DaemonConfig struct {
	Interval   time.Duration `mapstructure:"interval"`    // Default: 1s.
	LooperPath string        `mapstructure:"looper_path"` // Keep looping while this file reads "true".
	Watch      bool          `mapstructure:"watch"`       // Wake early on watch directory events.
}

// DashboardConfig configures the live run feed.
type DashboardConfig struct {
	Port int `mapstructure:"port"` // 0 disables the dashboard in daemon mode.
}

// SetDefaults registers every key with its default so that environment
// variables are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("watch_dir", "")
	v.SetDefault("archive_dir", "")
	v.SetDefault("error_dir", "")
	v.SetDefault("duplicate_dir", "")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("database.schema", "")
	v.SetDefault("database.items_table", "items")
	v.SetDefault("database.write_function", "writeconvertedpdf")

	v.SetDefault("transfer.chunk_size", 8192)

	v.SetDefault("mail.enabled", false)
	v.SetDefault("mail.host", "")
	v.SetDefault("mail.port", 25)
	v.SetDefault("mail.from", "")
	v.SetDefault("mail.to", "")
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.tls", "opportunistic")

	v.SetDefault("log.mode", "console")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	v.SetDefault("daemon.interval", time.Second)
	v.SetDefault("daemon.looper_path", "")
	v.SetDefault("daemon.watch", false)

	v.SetDefault("dashboard.port", 0)
}

// DefaultConfig returns the configuration with every default applied and
// nothing else set.
func DefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// NewViper returns a viper instance with defaults and environment binding.
// When cfgFile is non-empty it is read; its format follows the extension
// (yaml, toml, json, ...).
func NewViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
	}
	return v, nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.DuplicateDir == "" {
		cfg.DuplicateDir = cfg.ErrorDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required settings and their combinations.
func (c *Config) Validate() error {
	var errs []error

	required := []struct {
		key, value string
	}{
		{"watch_dir", c.WatchDir},
		{"archive_dir", c.ArchiveDir},
		{"error_dir", c.ErrorDir},
		{"database.url", c.Database.URL},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.key))
		}
	}

	if c.WatchDir != "" {
		watch := filepath.Clean(c.WatchDir)
		for _, d := range []struct{ key, value string }{
			{"archive_dir", c.ArchiveDir},
			{"error_dir", c.ErrorDir},
			{"duplicate_dir", c.DuplicateDir},
		} {
			if d.value != "" && filepath.Clean(d.value) == watch {
				errs = append(errs, fmt.Errorf("%s must differ from watch_dir", d.key))
			}
		}
	}

	switch strings.ToLower(c.Database.Driver) {
	case "postgres", "postgresql", "pgx", "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}

	if c.Transfer.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("transfer.chunk_size must be positive (got %d)", c.Transfer.ChunkSize))
	}

	if c.Mail.Enabled {
		if c.Mail.Host == "" {
			errs = append(errs, errors.New("mail.host is required when mail is enabled"))
		}
		if c.Mail.From == "" || c.Mail.To == "" {
			errs = append(errs, errors.New("mail.from and mail.to are required when mail is enabled"))
		}
	}

	if _, err := logging.ParseMode(c.Log.Mode); err != nil {
		errs = append(errs, err)
	}

	if c.Daemon.Interval < 0 {
		errs = append(errs, fmt.Errorf("daemon.interval cannot be negative"))
	}

	return errors.Join(errs...)
}

// StoreOptions returns the record store options.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Driver:        c.Database.Driver,
		URL:           c.Database.URL,
		Schema:        c.Database.Schema,
		ItemsTable:    c.Database.ItemsTable,
		WriteFunction: c.Database.WriteFunction,
	}
}

// Logging returns the logger configuration.
func (c *Config) Logging() (logging.Config, error) {
	mode, err := logging.ParseMode(c.Log.Mode)
	if err != nil {
		return logging.Config{}, err
	}
	return logging.Config{
		Mode:       mode,
		Level:      c.Log.Level,
		Path:       c.Log.Path,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	}, nil
}
