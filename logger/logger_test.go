package logger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	"visitorintel/api/logger"
)

func TestNewLevels(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"info":    zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for name, want := range cases {
		l := logger.New(logger.Config{Level: name, Format: "json"})
		assert.True(t, l.Desugar().Core().Enabled(want), name)
		if want > zapcore.DebugLevel {
			assert.False(t, l.Desugar().Core().Enabled(want-1), name)
		}
	}
}

func TestGlobalDefaults(t *testing.T) {
	t.Parallel()

	assert.NotNil(t, logger.L())
	logger.Debugf("debug %d", 1)
	logger.Infof("info %s", "ok")
}
