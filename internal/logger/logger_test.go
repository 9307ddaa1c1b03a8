package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/milamanifest69-lgtm/SolanaProject/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name  string
		cfg   config.LogConfig
		level zapcore.Level
	}{
		{"json debug", config.LogConfig{Level: "DEBUG", Encoding: "json"}, zapcore.DebugLevel},
		{"console warn", config.LogConfig{Level: "warn", Encoding: "console", Sampling: true}, zapcore.WarnLevel},
		{"unknown level", config.LogConfig{Level: "chatty", Encoding: "xml"}, zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tt.level))
			assert.False(t, l.Core().Enabled(tt.level-1))
		})
	}
}
