// Package logging provides structured logging with file and console output.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents logging levels
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Logger wraps zerolog with a date-stamped log file and optional console
// echo. Components pull child loggers via Component.
type Logger struct {
	zlog    zerolog.Logger
	file    *os.File
	logPath string
}

// Config holds logger configuration
type Config struct {
	LogDir  string   // Directory for log files (default: ~/.wakatto/logs)
	Level   LogLevel // Minimum log level (default: debug)
	Console bool     // Also log to console (default: true)
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		LogDir:  filepath.Join(home, ".wakatto", "logs"),
		Level:   LevelDebug,
		Console: true,
	}
}

// New creates a new Logger with file and console output
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFileName := fmt.Sprintf("wakatto_%s.log", time.Now().Format("2006-01-02"))
	logPath := filepath.Join(cfg.LogDir, logFileName)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	var writers []io.Writer
	writers = append(writers, file)

	if cfg.Console {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
		writers = append(writers, consoleWriter)
	}

	multi := io.MultiWriter(writers...)

	level := zerolog.DebugLevel
	switch cfg.Level {
	case LevelInfo:
		level = zerolog.InfoLevel
	case LevelWarn:
		level = zerolog.WarnLevel
	case LevelError:
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	zlog := zerolog.New(multi).With().
		Timestamp().
		Str("app", "wakatto").
		Logger()

	logger := &Logger{
		zlog:    zlog,
		file:    file,
		logPath: logPath,
	}

	zlog.Info().
		Str("component", "logging").
		Str("logFile", logPath).
		Str("level", string(cfg.Level)).
		Msg("Logger initialized")

	return logger, nil
}

// Component returns a zerolog.Logger with the component field set
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zlog.With().Str("component", name).Logger()
}

// Zerolog returns the underlying zerolog.Logger
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

// GetLogPath returns the current log file path
func (l *Logger) GetLogPath() string {
	return l.logPath
}

// Close closes the log file
func (l *Logger) Close() error {
	l.zlog.Info().Str("component", "logging").Msg("Logger shutting down")
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
