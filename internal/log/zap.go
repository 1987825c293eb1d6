package log

import (
	"go.uber.org/zap/zapcore"
)

// zapCore lets a Logger back a *zap.Logger, for the handful of
// third-party clients (HTTP, DNS) that want to install one.
type zapCore struct {
	l Logger
}

func (c zapCore) Enabled(level zapcore.Level) bool {
	if c.l.Debug {
		return true
	}
	return level > zapcore.DebugLevel
}

func (c zapCore) With(fields []zapcore.Field) zapcore.Core {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	c.l = c.l.With(enc.Fields)
	return c
}

func (c zapCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return ce.AddCore(entry, c)
	}
	return ce
}

func (c zapCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	name := c.l.Name
	if entry.LoggerName != "" {
		name += "/" + entry.LoggerName
	}
	l := c.l
	l.Name = name
	l.log(entry.Level == zapcore.DebugLevel, l.formatMsg(entry.Message, enc.Fields))
	return nil
}

func (c zapCore) Sync() error { return nil }
