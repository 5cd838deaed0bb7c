package facade

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerLevelAndFormat(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	var buf bytes.Buffer
	log := NewLogger(LogConfig{Level: "warn", Format: "json", Output: &buf})

	log.Info().Msg("quiet")
	assert.Zero(t, buf.Len())

	log.Warn().Msg("loud")
	assert.Contains(t, buf.String(), `"app":"hioload-mq"`)
	assert.Contains(t, buf.String(), `"message":"loud"`)
}

func TestLoggerEnvOverride(t *testing.T) {
	t.Setenv(EnvLogLevel, "debug")
	var buf bytes.Buffer
	log := NewLogger(LogConfig{Level: "error", Format: "json", Output: &buf})

	log.Debug().Msg("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestParseLevel(t *testing.T) {
	_, ok := parseLevel("chatty")
	assert.False(t, ok)
	lvl, ok := parseLevel(" WARNING ")
	assert.True(t, ok)
	assert.Equal(t, "warn", lvl.String())
}
