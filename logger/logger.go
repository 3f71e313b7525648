// Package logger holds the process-wide zap logger.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	global *zap.SugaredLogger
)

// Config defines logging configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

func DefaultConfig() Config {
	return Config{Level: "info", Format: "console"}
}

// Init replaces the global logger.
func Init(cfg Config) {
	l := New(cfg)
	mu.Lock()
	global = l
	mu.Unlock()
}

// New builds a SugaredLogger writing to stdout.
func New(cfg Config) *zap.SugaredLogger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.LevelKey = "level"
	encoderCfg.CallerKey = "caller"
	encoderCfg.MessageKey = "msg"
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
}

// L returns the global logger, initializing it with defaults on first use.
func L() *zap.SugaredLogger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		global = New(DefaultConfig())
	}
	return global
}

// Sync flushes buffered entries.
func Sync() {
	_ = L().Sync()
}

func Debugf(msg string, args ...interface{}) { L().Debugf(msg, args...) }

func Infof(msg string, args ...interface{}) { L().Infof(msg, args...) }

func Warnf(msg string, args ...interface{}) { L().Warnf(msg, args...) }

func Errorf(msg string, args ...interface{}) { L().Errorf(msg, args...) }

func Fatalf(msg string, args ...interface{}) { L().Fatalf(msg, args...) }
