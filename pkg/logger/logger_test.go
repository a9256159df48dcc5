package logger_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"civicfix/pkg/logger"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithOutput("complaint-service", &buf)

	log.WithTraceID("abc-123").Info("complaint created")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "complaint created", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "complaint-service", entry["service"])
	assert.Equal(t, "abc-123", entry["trace_id"])
	assert.Contains(t, entry, "timestamp")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, logger.ParseLevel("debug"))
	assert.Equal(t, logrus.WarnLevel, logger.ParseLevel(" WARN "))
	assert.Equal(t, logrus.ErrorLevel, logger.ParseLevel("error"))
	assert.Equal(t, logrus.InfoLevel, logger.ParseLevel(""))
	assert.Equal(t, logrus.InfoLevel, logger.ParseLevel("verbose"))
}
