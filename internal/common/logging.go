package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger = log.New(os.Stderr, "[fitfix] ", log.LstdFlags|log.Lmicroseconds)
)

// LogConfig controls the rotated log file written next to stderr output.
type LogConfig struct {
	Directory  string
	FileName   string
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool
}

func Logf(format string, args ...interface{}) {
	logger.Printf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	logger.Fatalf(format, args...)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// SetLogOutput replaces the destination of Logf.
func SetLogOutput(w io.Writer) {
	logger.SetOutput(w)
}

// SetupFileLogging tees Logf output to a size-rotated file. An empty
// directory leaves logging on stderr only.
func SetupFileLogging(cfg LogConfig) (io.Closer, error) {
	if cfg.Directory == "" {
		return nopCloser{}, nil
	}
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	name := cfg.FileName
	if name == "" {
		name = "fitfix.log"
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Directory, name),
		MaxSize:    cfg.MaxSizeMB,
		MaxAge:     cfg.MaxAgeDays,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
	logger.SetOutput(io.MultiWriter(os.Stderr, rotator))
	return rotator, nil
}
