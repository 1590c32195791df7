package log

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

var (
	atom  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugar = newLogger(atom).Sugar()
)

func newLogger(lvl zap.AtomicLevel) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), lvl)
	return zap.New(core)
}

func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return Debug
	case "info", "":
		return Info
	case "warn", "warning":
		return Warn
	case "err", "error":
		return Error
	default:
		return Info
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case Debug:
		return zapcore.DebugLevel
	case Warn:
		return zapcore.WarnLevel
	case Error:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func SetLevel(l Level) { atom.SetLevel(l.zapLevel()) }

func CurrentLevel() Level {
	switch atom.Level() {
	case zapcore.DebugLevel:
		return Debug
	case zapcore.WarnLevel:
		return Warn
	case zapcore.ErrorLevel:
		return Error
	default:
		return Info
	}
}

// Named returns a structured child logger sharing the global level.
func Named(name string) *zap.Logger { return sugar.Desugar().Named(name) }

func Debugf(format string, v ...any) { sugar.Debugf(format, v...) }
func Infof(format string, v ...any)  { sugar.Infof(format, v...) }
func Warnf(format string, v ...any)  { sugar.Warnf(format, v...) }
func Errorf(format string, v ...any) { sugar.Errorf(format, v...) }

func Sync() { _ = sugar.Sync() }

func InitFromEnvFallback(level string) {
	// Allow override via ENV if provided
	if env := os.Getenv("SHEETDASH_LOG_LEVEL"); env != "" {
		level = env
	}
	SetLevel(ParseLevel(level))
}
