package logger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Config describes one named logger in log.config.json.
type Config struct {
	Level            string       `json:"level"`
	OutputPaths      []string     `json:"outputPaths"`
	ErrorOutputPaths []string     `json:"errorOutputPaths"`
	Development      bool         `json:"development"`
	LogToConsole     bool         `json:"logToConsole"`
	Sampling         Sampling     `json:"sampling"`
	Encoding         Encoding     `json:"encodingConfig"`
	LogRotation      LogRotation  `json:"logRotation"`
	Sanitization     Sanitization `json:"sanitization"`
	Async            Async        `json:"async"`
}

type Sampling struct {
	Initial    int `json:"initial"`
	Thereafter int `json:"thereafter"`
}

type Encoding struct {
	TimeKey         string `json:"timeKey"`
	LevelKey        string `json:"levelKey"`
	NameKey         string `json:"nameKey"`
	CallerKey       string `json:"callerKey"`
	MessageKey      string `json:"messageKey"`
	StacktraceKey   string `json:"stacktraceKey"`
	LineEnding      string `json:"lineEnding"`
	LevelEncoder    string `json:"levelEncoder"`
	TimeEncoder     string `json:"timeEncoder"`
	DurationEncoder string `json:"durationEncoder"`
	CallerEncoder   string `json:"callerEncoder"`
}

type LogRotation struct {
	Enabled    bool `json:"enabled"`
	MaxSizeMB  int  `json:"maxSizeMB"`
	MaxBackups int  `json:"maxBackups"`
	MaxAgeDays int  `json:"maxAgeDays"`
	Compress   bool `json:"compress"`
}

// Sanitization lists field keys whose values are replaced by Mask.
type Sanitization struct {
	SensitiveFields []string `json:"sensitiveFields"`
	Mask            string   `json:"mask"`
}

// Async sizes the batching core used for file outputs.
type Async struct {
	BufferSize      int `json:"bufferSize"`
	BatchSize       int `json:"batchSize"`
	FlushIntervalMS int `json:"flushIntervalMs"`
}

// DefaultSensitiveFields are masked even when a logger config lists none.
var DefaultSensitiveFields = []string{
	"password",
	"token",
	"jwt_token",
	"authorization",
	"secret",
}

// DefaultConfig applies to loggers missing from every config file.
var DefaultConfig = Config{
	Level:            "info",
	OutputPaths:      []string{"stdout"},
	ErrorOutputPaths: []string{"stderr"},
	Sampling: Sampling{
		Initial:    100,
		Thereafter: 100,
	},
	Encoding: Encoding{
		TimeKey:         "time",
		LevelKey:        "level",
		NameKey:         "logger",
		CallerKey:       "caller",
		MessageKey:      "msg",
		StacktraceKey:   "stacktrace",
		LineEnding:      "\n",
		LevelEncoder:    "lowercase",
		TimeEncoder:     "iso8601",
		DurationEncoder: "string",
		CallerEncoder:   "short",
	},
	LogRotation: LogRotation{
		Enabled:    true,
		MaxSizeMB:  100,
		MaxBackups: 7,
		MaxAgeDays: 30,
		Compress:   true,
	},
	Sanitization: Sanitization{
		SensitiveFields: DefaultSensitiveFields,
		Mask:            "****",
	},
	Async: Async{
		BufferSize:      1000,
		BatchSize:       100,
		FlushIntervalMS: 500,
	},
}

// LoadConfigs reads every file in paths and merges their loggers. Missing files
// are skipped; a logger defined twice is an error.
func LoadConfigs(paths ...string) (map[string]Config, error) {
	merged := make(map[string]Config)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to read log configuration '%s': %w", path, err)
		}

		var wrapper struct {
			Loggers map[string]Config `json:"loggers"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, fmt.Errorf("failed to parse log configuration '%s': %w", path, err)
		}

		for name, cfg := range wrapper.Loggers {
			if _, exists := merged[name]; exists {
				return nil, fmt.Errorf("logger '%s' defined more than once (in '%s')", name, path)
			}
			merged[name] = cfg
		}
	}
	return merged, nil
}

func (cfg *Config) applyDefaults() {
	d := DefaultConfig
	if cfg.Level == "" {
		cfg.Level = d.Level
	}
	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = d.OutputPaths
	}
	if len(cfg.ErrorOutputPaths) == 0 {
		cfg.ErrorOutputPaths = d.ErrorOutputPaths
	}

	e := &cfg.Encoding
	if e.TimeKey == "" {
		e.TimeKey = d.Encoding.TimeKey
	}
	if e.LevelKey == "" {
		e.LevelKey = d.Encoding.LevelKey
	}
	if e.NameKey == "" {
		e.NameKey = d.Encoding.NameKey
	}
	if e.CallerKey == "" {
		e.CallerKey = d.Encoding.CallerKey
	}
	if e.MessageKey == "" {
		e.MessageKey = d.Encoding.MessageKey
	}
	if e.StacktraceKey == "" {
		e.StacktraceKey = d.Encoding.StacktraceKey
	}
	if e.LineEnding == "" {
		e.LineEnding = d.Encoding.LineEnding
	}
	if e.LevelEncoder == "" {
		e.LevelEncoder = d.Encoding.LevelEncoder
	}
	if e.TimeEncoder == "" {
		e.TimeEncoder = d.Encoding.TimeEncoder
	}
	if e.DurationEncoder == "" {
		e.DurationEncoder = d.Encoding.DurationEncoder
	}
	if e.CallerEncoder == "" {
		e.CallerEncoder = d.Encoding.CallerEncoder
	}

	if cfg.LogRotation.MaxSizeMB == 0 {
		cfg.LogRotation.MaxSizeMB = d.LogRotation.MaxSizeMB
	}
	if cfg.LogRotation.MaxBackups == 0 {
		cfg.LogRotation.MaxBackups = d.LogRotation.MaxBackups
	}
	if cfg.LogRotation.MaxAgeDays == 0 {
		cfg.LogRotation.MaxAgeDays = d.LogRotation.MaxAgeDays
	}

	cfg.Sanitization.SensitiveFields = mergeFields(DefaultSensitiveFields, cfg.Sanitization.SensitiveFields)
	if cfg.Sanitization.Mask == "" {
		cfg.Sanitization.Mask = d.Sanitization.Mask
	}

	if cfg.Async.BufferSize <= 0 {
		cfg.Async.BufferSize = d.Async.BufferSize
	}
	if cfg.Async.BatchSize <= 0 {
		cfg.Async.BatchSize = d.Async.BatchSize
	}
	if cfg.Async.FlushIntervalMS <= 0 {
		cfg.Async.FlushIntervalMS = d.Async.FlushIntervalMS
	}
}

func mergeFields(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]struct{}, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, f := range list {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}
