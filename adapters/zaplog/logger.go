package zaplog

import (
	"context"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger adapts a zap sugared logger to glog.Logger. Args are key/value
// pairs, matching how core.Observer flattens structured fields.
type Logger struct {
	sugar *zap.SugaredLogger
}

func New(base *zap.Logger) *Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return &Logger{sugar: base.Sugar()}
}

func (l *Logger) Trace(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *Logger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }

// Fatal logs at fatal level without exiting; process lifetime belongs to
// the caller.
func (l *Logger) Fatal(msg string, args ...any) { l.sugar.Errorw(msg, append(args, "fatal", true)...) }

func (l *Logger) WithContext(context.Context) glog.Logger {
	return l
}

func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

// Provider hands out named child loggers.
type Provider struct {
	base *zap.Logger
}

func NewProvider(base *zap.Logger) *Provider {
	if base == nil {
		base = zap.NewNop()
	}
	return &Provider{base: base}
}

func (p *Provider) GetLogger(name string) glog.Logger {
	name = strings.TrimSpace(name)
	if name == "" {
		return New(p.base)
	}
	return New(p.base.Named(name))
}

// NewProduction builds a JSON zap logger at level ("debug", "info", "warn",
// "error"). Unknown levels fall back to info.
func NewProduction(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	var parsed zapcore.Level
	if err := parsed.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		parsed = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	return cfg.Build()
}

var (
	_ glog.Logger         = (*Logger)(nil)
	_ glog.LoggerProvider = (*Provider)(nil)
)
