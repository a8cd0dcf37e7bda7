package logging

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStandardLogger(t *testing.T) {
	logger := NewStandardLogger("debug", "test")
	require.NotNil(t, logger)
	assert.NotNil(t, logger.Logger())
}

func TestStandardLoggerContexts(t *testing.T) {
	logger := NewStandardLogger("info", "test")

	assert.NotNil(t, logger.WithService("analysis"))
	assert.NotNil(t, logger.WithComponent("price_oracle"))
	assert.NotNil(t, logger.WithChain("Bitcoin"))
	assert.NotNil(t, logger.WithAddress("bc1qexample"))
	assert.NotNil(t, logger.WithProvider("cryptocompare"))
	assert.NotNil(t, logger.WithError(errors.New("boom")))
}

func TestGetSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, getSlogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, getSlogLevel("WARNING"))
	assert.Equal(t, slog.LevelError, getSlogLevel("error"))
	assert.Equal(t, slog.LevelInfo, getSlogLevel("anything"))
}

func TestParseLogrusLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLogrusLevel("debug"))
	assert.Equal(t, logrus.InfoLevel, ParseLogrusLevel(""))
}
