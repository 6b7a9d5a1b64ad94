package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/phsayre/pdf-uploader/internal/logging"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validYAML = `
watch_dir: /srv/pdf/out
archive_dir: /srv/pdf/uploads
error_dir: /srv/pdf/error
database:
  driver: postgres
  url: postgres://uploader@db/items
  schema: redacted
mail:
  enabled: true
  host: smtp.example.com
  from: uploader@example.com
  to: ops@example.com
log:
  mode: "3"
  path: /var/log/pdfuploader.log
daemon:
  interval: 5s
  looper_path: /srv/pdf/looper.txt
`

func TestLoad_YAML(t *testing.T) {
	v, err := NewViper(writeConfig(t, "config.yaml", validYAML))
	if err != nil {
		t.Fatalf("NewViper() failed: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.WatchDir != "/srv/pdf/out" {
		t.Errorf("WatchDir = %q", cfg.WatchDir)
	}
	if cfg.DuplicateDir != cfg.ErrorDir {
		t.Errorf("DuplicateDir = %q, want default %q", cfg.DuplicateDir, cfg.ErrorDir)
	}
	if cfg.Transfer.ChunkSize != 8192 {
		t.Errorf("ChunkSize = %d, want 8192", cfg.Transfer.ChunkSize)
	}
	if cfg.Mail.Port != 25 {
		t.Errorf("Mail.Port = %d, want 25", cfg.Mail.Port)
	}
	if cfg.Daemon.Interval != 5*time.Second {
		t.Errorf("Daemon.Interval = %v, want 5s", cfg.Daemon.Interval)
	}

	opts := cfg.StoreOptions()
	if opts.Schema != "redacted" || opts.ItemsTable != "items" || opts.WriteFunction != "writeconvertedpdf" {
		t.Errorf("StoreOptions() = %+v", opts)
	}

	lc, err := cfg.Logging()
	if err != nil {
		t.Fatalf("Logging() failed: %v", err)
	}
	if lc.Mode != logging.ModeBoth {
		t.Errorf("log mode = %q, want both", lc.Mode)
	}
}

func TestLoad_TOML(t *testing.T) {
	content := `
watch_dir = "/in"
archive_dir = "/archive"
error_dir = "/error"
duplicate_dir = "/dupes"

[database]
driver = "sqlite"
url = "/tmp/records.db"
`
	v, err := NewViper(writeConfig(t, "config.toml", content))
	if err != nil {
		t.Fatalf("NewViper() failed: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.DuplicateDir != "/dupes" {
		t.Errorf("DuplicateDir = %q, want /dupes", cfg.DuplicateDir)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Driver = %q", cfg.Database.Driver)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PDFUPLOADER_DATABASE_URL", "postgres://override")
	t.Setenv("PDFUPLOADER_TRANSFER_CHUNK_SIZE", "4096")

	v, err := NewViper(writeConfig(t, "config.yaml", validYAML))
	if err != nil {
		t.Fatalf("NewViper() failed: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Database.URL != "postgres://override" {
		t.Errorf("Database.URL = %q", cfg.Database.URL)
	}
	if cfg.Transfer.ChunkSize != 4096 {
		t.Errorf("ChunkSize = %d, want 4096", cfg.Transfer.ChunkSize)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := NewViper(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("NewViper() should fail for a missing config file")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			WatchDir:     "/in",
			ArchiveDir:   "/archive",
			ErrorDir:     "/error",
			DuplicateDir: "/error",
			Database:     DatabaseConfig{Driver: "postgres", URL: "postgres://x"},
			Transfer:     TransferConfig{ChunkSize: 8192},
			Log:          LogConfig{Mode: "console"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing watch dir", func(c *Config) { c.WatchDir = "" }, "watch_dir is required"},
		{"missing url", func(c *Config) { c.Database.URL = "" }, "database.url is required"},
		{"archive equals watch", func(c *Config) { c.ArchiveDir = "/in/" }, "archive_dir must differ"},
		{"bad driver", func(c *Config) { c.Database.Driver = "mssql" }, "not supported"},
		{"bad chunk size", func(c *Config) { c.Transfer.ChunkSize = 0 }, "chunk_size"},
		{"mail without host", func(c *Config) {
			c.Mail = MailConfig{Enabled: true, From: "a@x", To: "b@x"}
		}, "mail.host"},
		{"bad log mode", func(c *Config) { c.Log.Mode = "9" }, "unknown log mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Database.Driver != "postgres" || cfg.Database.WriteFunction != "writeconvertedpdf" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Transfer.ChunkSize != 8192 {
		t.Errorf("ChunkSize = %d", cfg.Transfer.ChunkSize)
	}
	if cfg.Daemon.Interval != time.Second {
		t.Errorf("Daemon.Interval = %v", cfg.Daemon.Interval)
	}
	if cfg.Log.Mode != "console" {
		t.Errorf("Log.Mode = %q", cfg.Log.Mode)
	}
}
