// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tapterm/paybroker/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup applies level, formatter and output to the standard logrus logger.
// The returned closer flushes and closes the rotated file, if any.
func Setup(cfg config.LogConfig) (io.Closer, error) {
	level, errLevel := log.ParseLevel(strings.TrimSpace(cfg.Level))
	if errLevel != nil {
		return nil, fmt.Errorf("logging: %w", errLevel)
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	path := strings.TrimSpace(cfg.File)
	if path == "" {
		log.SetOutput(os.Stdout)
		return nopCloser{}, nil
	}
	if errMkdir := os.MkdirAll(filepath.Dir(path), 0o755); errMkdir != nil {
		return nil, fmt.Errorf("logging: create log dir: %w", errMkdir)
	}
	rotator := NewRotator(cfg)
	log.SetOutput(io.MultiWriter(os.Stdout, rotator))
	return rotator, nil
}

// NewRotator builds the size/age based rotating file writer.
func NewRotator(cfg config.LogConfig) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   strings.TrimSpace(cfg.File),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
		LocalTime:  false,
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
