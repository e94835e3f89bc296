package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	gethlog "github.com/ethereum/go-ethereum/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the log sink and verbosity.
type Config struct {
	Verbosity int    `koanf:"verbosity"`
	JSON      bool   `koanf:"json"`
	File      string `koanf:"file"`
	MaxSizeMB int    `koanf:"max-size"`
	Backups   int    `koanf:"backups"`
}

// DefaultConfig logs at info level to stderr.
var DefaultConfig = Config{
	Verbosity: 3,
	MaxSizeMB: 100,
	Backups:   3,
}

// VerbosityToLevel maps the 0-5 verbosity scale onto slog levels. 0 is
// silent.
func VerbosityToLevel(v int) slog.Level {
	switch {
	case v <= 0:
		return LevelSilent
	case v == 1:
		return slog.LevelError
	case v == 2:
		return slog.LevelWarn
	case v == 3:
		return slog.LevelInfo
	case v == 4:
		return slog.LevelDebug
	default:
		return LevelTrace
	}
}

// Setup installs the process logger described by cfg as both this package's
// default and go-ethereum's root logger. The returned closer releases the
// log file, if any.
func Setup(cfg Config) (io.Closer, error) {
	if cfg.Verbosity < 0 || cfg.Verbosity > 5 {
		return nil, fmt.Errorf("log: verbosity %d out of range 0-5", cfg.Verbosity)
	}
	var (
		out    io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.Backups,
		}
		out, closer = lj, lj
	}
	h := Handler(out, cfg)
	SetDefault(NewWithHandler(h))
	gethlog.SetDefault(gethlog.NewLogger(h))
	return closer, nil
}

// Handler builds the slog handler for cfg writing to w.
func Handler(w io.Writer, cfg Config) slog.Handler {
	lvl := VerbosityToLevel(cfg.Verbosity)
	if cfg.JSON {
		return gethlog.JSONHandlerWithLevel(w, lvl)
	}
	return gethlog.NewTerminalHandlerWithLevel(w, lvl, cfg.File == "" && isTerminal(w))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
