package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		cfg     Config
		enabled zapcore.Level
		muted   zapcore.Level
	}{
		{Config{Level: "debug", Format: "json"}, zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{Config{Level: "WARN", Format: "console"}, zapcore.WarnLevel, zapcore.InfoLevel},
		{Config{Level: "error"}, zapcore.ErrorLevel, zapcore.WarnLevel},
	}
	for _, tt := range tests {
		logger, err := New(tt.cfg)
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(tt.enabled), tt.cfg)
		assert.False(t, logger.Core().Enabled(tt.muted), tt.cfg)
	}
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Config{Level: "info", Format: "xml"})
	assert.Error(t, err)

	assert.NotNil(t, Must(Config{Level: "loud"}))
}
