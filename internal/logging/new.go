package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	BackendSlog = "slog"
	BackendZap  = "zap"

	FormatText = "text"
	FormatJSON = "json"
)

// FileConfig enables a rotating log file next to the console output.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type Config struct {
	Backend string
	Format  string
	Level   string
	File    FileConfig
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds the logger described by cfg, writing to console and, when
// cfg.File.Path is set, to a lumberjack-rotated file. The returned closer
// flushes and releases the file.
func New(cfg Config, console io.Writer) (Logger, io.Closer, error) {
	if console == nil {
		console = os.Stderr
	}

	out := console
	var closer io.Closer = nopCloser{}
	if cfg.File.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File.Path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
		out = io.MultiWriter(console, lj)
		closer = lj
	}

	switch strings.ToLower(cfg.Backend) {
	case "", BackendSlog:
		opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level)}
		var h slog.Handler
		if strings.EqualFold(cfg.Format, FormatJSON) {
			h = slog.NewJSONHandler(out, opts)
		} else {
			h = slog.NewTextHandler(out, opts)
		}
		return NewSlogLogger(slog.New(h)), closer, nil

	case BackendZap:
		level, err := zapcore.ParseLevel(levelOrInfo(cfg.Level))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		var enc zapcore.Encoder
		if strings.EqualFold(cfg.Format, FormatJSON) {
			enc = zapcore.NewJSONEncoder(encCfg)
		} else {
			enc = zapcore.NewConsoleEncoder(encCfg)
		}
		zl := NewZapLogger(zap.New(zapcore.NewCore(enc, zapcore.AddSync(out), level)))
		return zl, closerFunc(func() error {
			_ = zl.Sync()
			return closer.Close()
		}), nil

	default:
		return nil, nil, fmt.Errorf("unknown log backend %q", cfg.Backend)
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func levelOrInfo(level string) string {
	if level == "" {
		return "info"
	}
	return level
}

func slogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}
