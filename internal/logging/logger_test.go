package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LogDebug},
		{"INFO", LogInfo},
		{"warn", LogWarning},
		{"warning", LogWarning},
		{"error", LogError},
		{"", LogInfo},
		{"verbose", LogInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "factlens.log")

	l, err := New(Config{Level: "debug", Path: path})
	require.NoError(t, err)

	l.Info("model loaded from %s", "artifacts/")
	l.With("component", "test").Warning("slow request: %dms", 1200)
	_ = l.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "model loaded from artifacts/")
	assert.Contains(t, string(data), `"component":"test"`)
}

func TestSetLevel(t *testing.T) {
	l, err := New(Config{Level: "error"})
	require.NoError(t, err)

	assert.False(t, l.Enabled(LogInfo))
	l.SetLevel(LogDebug)
	assert.True(t, l.Enabled(LogDebug))
}

func TestNopDiscards(t *testing.T) {
	l := Nop()
	l.Error("nothing %d", 1)
	assert.NoError(t, l.Close())
}
