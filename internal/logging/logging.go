// Package logging builds the process logger.
//
// Messages can be routed nowhere, to a rotating log file, to the console
// (stderr) or to both. The numeric forms 0-3 of the legacy write switch are
// accepted as aliases.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Mode selects where log messages are written.
type Mode string

const (
	ModeNone    Mode = "none"    // discard everything
	ModeFile    Mode = "file"    // rotating file only
	ModeConsole Mode = "console" // stderr only
	ModeBoth    Mode = "both"    // file and stderr
)

// ParseMode accepts a mode name or its legacy numeric alias.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "none", "off":
		return ModeNone, nil
	case "1", "file", "log":
		return ModeFile, nil
	case "2", "console", "stderr", "":
		return ModeConsole, nil
	case "3", "both":
		return ModeBoth, nil
	default:
		return "", fmt.Errorf("unknown log mode %q (want none, file, console or both)", s)
	}
}

// Config holds logger settings.
type Config struct {
	Mode  Mode
	Level string // debug, info, warn, error

	// File sink (file and both modes).
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// DefaultConfig logs info and above to the console.
func DefaultConfig() Config {
	return Config{
		Mode:       ModeConsole,
		Level:      "info",
		MaxSizeMB:  10,
		MaxBackups: 5,
		MaxAgeDays: 30,
	}
}

// New builds a logger for cfg. The returned close function flushes the
// logger and closes the log file; it is safe to call once.
func New(cfg Config) (*zap.Logger, func() error, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encoder := zapcore.NewConsoleEncoder(encCfg)

	var cores []zapcore.Core
	var rotator *lumberjack.Logger

	if cfg.Mode == ModeFile || cfg.Mode == ModeBoth {
		if cfg.Path == "" {
			return nil, nil, fmt.Errorf("log mode %s requires a log path", cfg.Mode)
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		rotator = &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotator), level))
	}

	if cfg.Mode == ModeConsole || cfg.Mode == ModeBoth {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level))
	}

	if len(cores) == 0 {
		return zap.NewNop(), func() error { return nil }, nil
	}

	logger := zap.New(zapcore.NewTee(cores...))
	closeFn := func() error {
		_ = logger.Sync()
		if rotator != nil {
			return rotator.Close()
		}
		return nil
	}
	return logger, closeFn, nil
}
