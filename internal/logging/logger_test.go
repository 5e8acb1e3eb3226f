package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, WARN, "test")

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "error message")
}

func TestWriterLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, DEBUG, "scorer")

	logger.Info("scored %d candidates", 7)

	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line)
	assert.Contains(t, line, "[INFO]")
	assert.Contains(t, line, "[scorer]")
	assert.Contains(t, line, "scored 7 candidates")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("WARNING"))
	assert.Equal(t, ERROR, ParseLevel("Error"))
	assert.Equal(t, INFO, ParseLevel(""))
	assert.Equal(t, INFO, ParseLevel("bogus"))
}

func TestNopAndOrNop(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().Info("discarded %s", "message")
	})
	assert.NotNil(t, OrNop(nil))

	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, DEBUG, "x")
	assert.Equal(t, logger, OrNop(logger))
}
