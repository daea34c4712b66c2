package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewDefaultsToInfoJSON(t *testing.T) {
	logger, err := New(Options{})
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestNewRejectsInvalidLevel(t *testing.T) {
	_, err := New(Options{Level: "not-a-level"})
	assert.Error(t, err)
}

func TestNewConsoleFormat(t *testing.T) {
	logger, err := New(Options{Format: FormatConsole, Level: "debug"})
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestSugaredReturnsSugaredLogger(t *testing.T) {
	sugared, err := Sugared(Options{})
	require.NoError(t, err)
	require.NotNil(t, sugared)
}

func TestNopIsUsable(t *testing.T) {
	nop := Nop()
	require.NotNil(t, nop)
	nop.Infow("discarded", "key", "value")
}
