package logger

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_ParsesLevelAndFallsBackToInfo(t *testing.T) {
	require.NoError(t, Init(Config{Level: "debug"}))
	assert.Equal(t, logrus.DebugLevel, Logger.GetLevel())

	require.NoError(t, Init(Config{Level: "nonsense"}))
	assert.Equal(t, logrus.InfoLevel, Logger.GetLevel())
}

func TestInit_CreatesLogDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bot.log")
	require.NoError(t, Init(Config{Level: "info", OutputFile: path, MaxSize: 1}))
	assert.Equal(t, path, GetCurrentLogFile())
	assert.DirExists(t, filepath.Dir(path))
}

func TestWithFields_WritesStructuredOutput(t *testing.T) {
	require.NoError(t, Init(Config{Level: "info", JSON: true}))
	var buf bytes.Buffer
	SetOutput(&buf)

	WithFields(logrus.Fields{"symbol": "BTCUSDT", "stage": "GATED"}).Info("gate evaluated")

	out := buf.String()
	assert.Contains(t, out, `"symbol":"BTCUSDT"`)
	assert.Contains(t, out, `"stage":"GATED"`)
}
