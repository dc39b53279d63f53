// Package logger builds the zap loggers used across the engine. There is no
// process-global logger: cmd constructs one and hands named children to each
// component.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format values accepted by New.
const (
	FormatConsole = "CONSOLE" // human-readable, colored levels
	FormatJSON    = "JSON"    // one JSON object per line
)

// Component names passed to Named so every log line carries its origin.
const (
	ComponentLifecycle = "lifecycle"
	ComponentFactory   = "factory"
	ComponentSite      = "site"
	ComponentWatch     = "watch"
	ComponentScheduler = "scheduler"
	ComponentServer    = "server"
	ComponentExecutor  = "executor"
	ComponentTenants   = "tenants"
)

// level converts a textual level to zapcore.Level, defaulting to info.
func level(name string) zapcore.Level {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARN", "WARNING":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05 MST"))
}

// New creates a zap logger writing to stdout with the given level and format.
func New(logLevel, format string) *zap.Logger {
	return NewWithWriter(os.Stdout, logLevel, format)
}

// NewWithWriter is New with an explicit destination, used by tests and by
// the serve command when logging to a file.
func NewWithWriter(w io.Writer, logLevel, format string) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "component",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if strings.ToUpper(format) == FormatJSON {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.EncodeTime = timeEncoder
		encoderConfig.ConsoleSeparator = " | "
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(w), zap.NewAtomicLevelAt(level(logLevel)))
	return zap.New(core, zap.AddCaller())
}

// Named returns a sugared child logger for component. A nil base yields a
// no-op logger so components never need to nil-check.
func Named(base *zap.Logger, component string) *zap.SugaredLogger {
	if base == nil {
		return zap.NewNop().Sugar()
	}
	return base.Named(component).Sugar()
}
