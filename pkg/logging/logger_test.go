package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ringelect/config"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "chatty"})
	assert.Error(t, err)
}

func TestNewDefaultsToInfo(t *testing.T) {
	log, err := New(config.LoggingConfig{})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zap.InfoLevel))
	assert.False(t, log.Core().Enabled(zap.DebugLevel))
}

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ringelect.log")
	log, err := New(config.LoggingConfig{Level: "debug", Format: "json", File: path})
	require.NoError(t, err)

	log.Debug("adopted candidate", zap.Uint32("to", 9))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	require.NotEmpty(t, line)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "adopted candidate", entry["msg"])
	assert.Equal(t, "debug", entry["level"])
	assert.EqualValues(t, 9, entry["to"])
}
