package logger

import (
	"bytes"
	"convmem/src/model"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger_InvalidLevel(t *testing.T) {
	err := InitLogger(model.LogConfig{Level: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestInitLogger_File(t *testing.T) {
	t.Cleanup(func() {
		Logger = zerolog.Nop()
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	})

	path := filepath.Join(t.TempDir(), "nested", "app.log")
	err := InitLogger(model.LogConfig{Level: "debug", Format: "json", Output: "file", FilePath: path, TimeFormat: "unix"})
	require.NoError(t, err)

	Info().Str("user_id", "u1").Msg("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Logger initialized successfully")
	assert.Contains(t, string(data), `"user_id":"u1"`)
}

func TestComponent(t *testing.T) {
	t.Cleanup(func() { Logger = zerolog.Nop() })

	var buf bytes.Buffer
	SetOutput(&buf)

	l := Component("assembler")
	l.Warn().Msg("degraded")

	assert.Contains(t, buf.String(), `"component":"assembler"`)
	assert.Contains(t, buf.String(), `"level":"warn"`)
}
