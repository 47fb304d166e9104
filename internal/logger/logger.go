// Package logger builds the named zap loggers of the portal from log.config.json.
package logger

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Well known logger names.
const (
	RootLogger = "supportportal"
	AuthLogger = "auth"
	MailLogger = "mail"
	HTTPLogger = "http"
)

// Manager owns every named logger and the async cores behind them.
type Manager struct {
	mu      sync.RWMutex
	loggers map[string]*zap.Logger
	closers []*AsyncCore
}

// NewManager builds loggers from the given config files. The root logger is
// always present, falling back to DefaultConfig.
func NewManager(paths ...string) (*Manager, error) {
	configs, err := LoadConfigs(paths...)
	if err != nil {
		return nil, err
	}
	return NewManagerFromConfigs(configs)
}

func NewManagerFromConfigs(configs map[string]Config) (*Manager, error) {
	m := &Manager{loggers: make(map[string]*zap.Logger)}

	if _, ok := configs[RootLogger]; !ok {
		if configs == nil {
			configs = make(map[string]Config)
		}
		configs[RootLogger] = DefaultConfig
	}

	for name, cfg := range configs {
		l, err := m.build(name, cfg)
		if err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("failed to build logger '%s': %w", name, err)
		}
		m.loggers[name] = l
	}
	return m, nil
}

// Add registers an externally built logger.
func (m *Manager) Add(name string, l *zap.Logger) error {
	if l == nil {
		return errors.New("logger cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.loggers[name]; exists {
		return fmt.Errorf("logger '%s' already exists", name)
	}
	m.loggers[name] = l
	return nil
}

// Get returns the named logger or the root logger, named after the request,
// when it is not configured.
func (m *Manager) Get(name string) *zap.Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if l, ok := m.loggers[name]; ok {
		return l
	}
	return m.loggers[RootLogger].Named(name)
}

// Names lists configured loggers in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.loggers))
	for name := range m.loggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sync flushes every logger. Errors from syncing a terminal are ignored.
func (m *Manager) Sync() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for name, l := range m.loggers {
		if err := l.Sync(); err != nil && !isTerminalSyncErr(err) {
			errs = append(errs, fmt.Errorf("failed to sync logger '%s': %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Close flushes and stops the async cores. Loggers must not be used afterwards.
func (m *Manager) Close() error {
	err := m.Sync()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.closers {
		c.Close()
	}
	m.closers = nil
	return err
}

func (m *Manager) build(name string, cfg Config) (*zap.Logger, error) {
	cfg.applyDefaults()

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        cfg.Encoding.TimeKey,
		LevelKey:       cfg.Encoding.LevelKey,
		NameKey:        cfg.Encoding.NameKey,
		CallerKey:      cfg.Encoding.CallerKey,
		MessageKey:     cfg.Encoding.MessageKey,
		StacktraceKey:  cfg.Encoding.StacktraceKey,
		LineEnding:     cfg.Encoding.LineEnding,
		EncodeLevel:    levelEncoder(cfg.Encoding.LevelEncoder),
		EncodeTime:     timeEncoder(cfg.Encoding.TimeEncoder),
		EncodeDuration: durationEncoder(cfg.Encoding.DurationEncoder),
		EncodeCaller:   callerEncoder(cfg.Encoding.CallerEncoder),
	}
	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	var cores []zapcore.Core
	console := cfg.Development || cfg.LogToConsole
	for _, path := range cfg.OutputPaths {
		if path == "stdout" || path == "stderr" {
			console = true
		}
	}
	if console {
		consoleConfig := encoderConfig
		if cfg.Development {
			consoleConfig.EncodeLevel = coloredLevelEncoder
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConfig), zapcore.Lock(os.Stdout), level))
	}

	for _, path := range cfg.OutputPaths {
		if path == "stdout" || path == "stderr" {
			continue
		}
		ws, err := fileSyncer(path, cfg.LogRotation)
		if err != nil {
			return nil, err
		}
		async := NewAsyncCore(
			zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), ws, level),
			cfg.Async.BufferSize,
			cfg.Async.BatchSize,
			time.Duration(cfg.Async.FlushIntervalMS)*time.Millisecond,
		)
		m.closers = append(m.closers, async)
		cores = append(cores, async)
	}

	core := zapcore.NewTee(cores...)
	if cfg.Sampling.Initial > 0 && !cfg.Development {
		core = zapcore.NewSamplerWithOptions(core, time.Second, cfg.Sampling.Initial, cfg.Sampling.Thereafter)
	}
	core = NewSanitizerCore(core, cfg.Sanitization.SensitiveFields, cfg.Sanitization.Mask)

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}
	return zap.New(core, opts...).Named(name), nil
}

func fileSyncer(path string, rotation LogRotation) (zapcore.WriteSyncer, error) {
	if rotation.Enabled {
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    rotation.MaxSizeMB,
			MaxBackups: rotation.MaxBackups,
			MaxAge:     rotation.MaxAgeDays,
			Compress:   rotation.Compress,
		}), nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file '%s': %w", path, err)
	}
	return zapcore.AddSync(f), nil
}

// Syncing stdout on a terminal or pipe returns EINVAL or ENOTTY.
func isTerminalSyncErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid argument") || strings.Contains(msg, "inappropriate ioctl")
}

func parseLevel(level string) zapcore.Level {
	l, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

func levelEncoder(name string) zapcore.LevelEncoder {
	switch strings.ToLower(name) {
	case "uppercase", "capital":
		return zapcore.CapitalLevelEncoder
	default:
		return zapcore.LowercaseLevelEncoder
	}
}

func timeEncoder(name string) zapcore.TimeEncoder {
	switch strings.ToLower(name) {
	case "epoch":
		return zapcore.EpochTimeEncoder
	case "millis":
		return zapcore.EpochMillisTimeEncoder
	case "nanos":
		return zapcore.EpochNanosTimeEncoder
	case "rfc3339":
		return zapcore.RFC3339TimeEncoder
	default:
		return zapcore.ISO8601TimeEncoder
	}
}

func durationEncoder(name string) zapcore.DurationEncoder {
	switch strings.ToLower(name) {
	case "seconds":
		return zapcore.SecondsDurationEncoder
	case "millis":
		return zapcore.MillisDurationEncoder
	case "nanos":
		return zapcore.NanosDurationEncoder
	default:
		return zapcore.StringDurationEncoder
	}
}

func callerEncoder(name string) zapcore.CallerEncoder {
	if strings.ToLower(name) == "full" {
		return zapcore.FullCallerEncoder
	}
	return zapcore.ShortCallerEncoder
}

func coloredLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	var color string
	switch l {
	case zapcore.DebugLevel:
		color = "\x1b[36m"
	case zapcore.InfoLevel:
		color = "\x1b[32m"
	case zapcore.WarnLevel:
		color = "\x1b[33m"
	case zapcore.ErrorLevel:
		color = "\x1b[31m"
	default:
		color = "\x1b[35m"
	}
	enc.AppendString(color + l.String() + "\x1b[0m")
}
