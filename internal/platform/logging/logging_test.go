package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug":   zap.DebugLevel,
		" WARN ":  zap.WarnLevel,
		"warning": zap.WarnLevel,
		"error":   zap.ErrorLevel,
		"info":    zap.InfoLevel,
		"":        zap.InfoLevel,
		"verbose": zap.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNewWithOptionsWritesConsoleLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.log")
	l, err := NewWithOptions(Options{Level: "warn", OutputPaths: []string{path}})
	require.NoError(t, err)

	l.Info("hidden")
	l.Warn("provider unavailable", zap.String("provider", "uniswap"))
	_ = l.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(raw)
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "provider unavailable")
	assert.True(t, strings.Contains(out, "uniswap"))
}
