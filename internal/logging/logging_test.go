package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"0", ModeNone, false},
		{"1", ModeFile, false},
		{"2", ModeConsole, false},
		{"3", ModeBoth, false},
		{"Both", ModeBoth, false},
		{" file ", ModeFile, false},
		{"", ModeConsole, false},
		{"4", "", true},
		{"syslog", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew_None(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeNone
	logger, closeFn, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("dropped")
	if err := closeFn(); err != nil {
		t.Fatal(err)
	}
}

func TestNew_WithFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeFile
	cfg.Path = filepath.Join(t.TempDir(), "logs", "pdfuploader.log")

	logger, closeFn, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("to file")
	logger.Debug("below level")
	if err := closeFn(); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(cfg.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(b, []byte("INFO")) || !bytes.Contains(b, []byte("to file")) {
		t.Errorf("log file content: %s", string(b))
	}
	if bytes.Contains(b, []byte("below level")) {
		t.Errorf("debug message written at info level: %s", string(b))
	}
}

func TestNew_FileModeNeedsPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeBoth
	if _, _, err := New(cfg); err == nil {
		t.Fatal("New() should fail without a log path")
	}
}

func TestNew_BadLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "chatty"
	if _, _, err := New(cfg); err == nil {
		t.Fatal("New() should reject an unknown level")
	}
}
