package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitWithWriter_Levels(t *testing.T) {
	t.Cleanup(Close)

	var buf bytes.Buffer
	require.NoError(t, InitWithWriter(Options{Level: "warn"}, zapcore.AddSync(&buf)))

	Info("hidden %d", 1)
	Warn("shown %d", 2)
	Error("also shown %s", "three")

	out := buf.String()
	assert.NotContains(t, out, "hidden 1")
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, "also shown three")
}

func TestInitWithWriter_InvalidLevel(t *testing.T) {
	t.Cleanup(Close)

	err := InitWithWriter(Options{Level: "chatty"}, zapcore.AddSync(&bytes.Buffer{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chatty")
}

func TestInit_FileOutputIsJSON(t *testing.T) {
	t.Cleanup(Close)

	path := filepath.Join(t.TempDir(), "run.log")
	require.NoError(t, InitWithWriter(Options{Level: "debug", File: path}, zapcore.AddSync(&bytes.Buffer{})))

	Debug("resolved %s", "#b")
	Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	assert.True(t, strings.HasPrefix(line, "{"), "file log should be JSON, got %q", line)
	assert.Contains(t, line, "resolved #b")
}

func TestL_NopBeforeInit(t *testing.T) {
	Close()
	assert.NotNil(t, L())
	assert.NotPanics(t, func() { Info("nothing to see") })
}

func TestOr(t *testing.T) {
	Close()
	assert.Same(t, L(), Or(nil))
}
