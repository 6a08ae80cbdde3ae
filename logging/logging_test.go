package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := initWithWriter(&buf, "duration-api", "production", "warn")

	logger.Info().Msg("dropped")
	logger.Warn().Str("version", "v1").Msg("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "duration-api", entry["service"])
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "v1", entry["version"])
	assert.Contains(t, entry, "caller")
}

func TestInitInvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := initWithWriter(&buf, "trainer", "production", "loud")

	logger.Debug().Msg("dropped")
	assert.Zero(t, buf.Len())
	logger.Info().Msg("kept")
	assert.NotZero(t, buf.Len())
}

func TestInitConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := initWithWriter(&buf, "collector", "development", "debug")
	logger.Debug().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), "collector")
}
