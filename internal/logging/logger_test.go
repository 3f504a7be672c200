package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func Test_New(t *testing.T) {
	for _, development := range []bool{true, false} {
		logger, err := New(development, "")
		require.NoError(t, err)
		require.NotNil(t, logger)
		logger.Info("logger ready")
		_ = logger.Sync()
	}
}

func Test_NewLevel(t *testing.T) {
	tests := []struct {
		development bool
		level       string
		enabled     zapcore.Level
		disabled    zapcore.Level
	}{
		{development: false, level: "", enabled: zapcore.InfoLevel, disabled: zapcore.DebugLevel},
		{development: true, level: "", enabled: zapcore.DebugLevel, disabled: zapcore.DebugLevel - 1},
		{development: false, level: "debug", enabled: zapcore.DebugLevel, disabled: zapcore.DebugLevel - 1},
		{development: true, level: "warn", enabled: zapcore.WarnLevel, disabled: zapcore.InfoLevel},
		{development: false, level: "ERROR", enabled: zapcore.ErrorLevel, disabled: zapcore.WarnLevel},
	}

	for _, tc := range tests {
		logger, err := New(tc.development, tc.level)
		require.NoError(t, err, tc.level)
		assert.True(t, logger.Core().Enabled(tc.enabled), tc.level)
		assert.False(t, logger.Core().Enabled(tc.disabled), tc.level)
	}
}

func Test_NewInvalidLevel(t *testing.T) {
	_, err := New(false, "loud")
	assert.Error(t, err)
}
