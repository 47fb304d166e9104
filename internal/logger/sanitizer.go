package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SanitizerCore masks the values of sensitive fields before they reach the
// wrapped core, including fields attached through With.
type SanitizerCore struct {
	zapcore.Core
	sensitive map[string]struct{}
	mask      string
}

func NewSanitizerCore(core zapcore.Core, sensitiveFields []string, mask string) *SanitizerCore {
	set := make(map[string]struct{}, len(sensitiveFields))
	for _, f := range sensitiveFields {
		set[strings.ToLower(f)] = struct{}{}
	}
	return &SanitizerCore{Core: core, sensitive: set, mask: mask}
}

func (s *SanitizerCore) With(fields []zapcore.Field) zapcore.Core {
	return &SanitizerCore{
		Core:      s.Core.With(s.sanitize(fields)),
		sensitive: s.sensitive,
		mask:      s.mask,
	}
}

func (s *SanitizerCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if s.Enabled(entry.Level) {
		return ce.AddCore(entry, s)
	}
	return ce
}

func (s *SanitizerCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	return s.Core.Write(entry, s.sanitize(fields))
}

// IsSensitive reports whether key is masked.
func (s *SanitizerCore) IsSensitive(key string) bool {
	_, ok := s.sensitive[strings.ToLower(key)]
	return ok
}

func (s *SanitizerCore) sanitize(fields []zapcore.Field) []zapcore.Field {
	var out []zapcore.Field
	for i, f := range fields {
		if !s.IsSensitive(f.Key) {
			continue
		}
		if out == nil {
			out = make([]zapcore.Field, len(fields))
			copy(out, fields)
		}
		out[i] = zap.String(f.Key, s.mask)
	}
	if out == nil {
		return fields
	}
	return out
}
