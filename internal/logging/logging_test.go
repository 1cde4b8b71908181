package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(Config{Level: "warn", Format: FormatJSON}, &buf)
	require.NoError(t, err)

	log.Info("dropped")
	log.Warn("kept")
	require.NoError(t, log.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "warn", entry["level"])
}

func TestNewLogger_Invalid(t *testing.T) {
	_, err := newLogger(Config{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)

	_, err = newLogger(Config{Format: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)
}
