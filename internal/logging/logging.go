// Package logging configures the process-wide logger and re-exports the
// handful of helpers the rest of the codebase uses. Call sites import this
// package as `log` so the underlying library stays an implementation detail.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultLogDir      = "logs"
	defaultLogFileName = "freight-ai.log"
	maxLogSizeMB       = 50
	maxLogBackups      = 5
	maxLogAgeDays      = 14
)

// SetupBaseLogger configures the default text formatter and stderr output.
// It is safe to call more than once.
func SetupBaseLogger() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logrus.SetOutput(os.Stderr)
	logrus.SetLevel(logrus.InfoLevel)
}

// SetDebug toggles debug-level logging.
func SetDebug(debug bool) {
	if debug {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
}

// ConfigureLogOutput switches logging to a rotating file when toFile is true.
// The log file is written under ./logs relative to the working directory.
func ConfigureLogOutput(toFile bool) error {
	if !toFile {
		logrus.SetOutput(os.Stderr)
		return nil
	}
	if err := os.MkdirAll(defaultLogDir, 0o755); err != nil {
		return err
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(defaultLogDir, defaultLogFileName),
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
		MaxAge:     maxLogAgeDays,
		Compress:   true,
	}
	logrus.SetOutput(io.MultiWriter(os.Stderr, rotator))
	return nil
}

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) { logrus.Debugf(format, args...) }

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) { logrus.Infof(format, args...) }

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...any) { logrus.Warnf(format, args...) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) { logrus.Errorf(format, args...) }

// Fatalf logs a formatted message at fatal level and exits.
func Fatalf(format string, args ...any) { logrus.Fatalf(format, args...) }

// WithError returns an entry with the error attached as a field.
func WithError(err error) *logrus.Entry { return logrus.WithError(err) }

// WithField returns an entry with a single field attached.
func WithField(key string, value any) *logrus.Entry { return logrus.WithField(key, value) }
