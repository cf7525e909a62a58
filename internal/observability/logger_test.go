package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/crossflow/internal/config"
)

func TestGetLoggerBeforeInitializeFallsBack(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)
}

func TestInitializeRunsOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	sink := zapcore.AddSync(zaptest.NewTestingWriter(t))
	cfg := config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "crossflow-test"}
	Initialize(cfg, sink)
	first := GetLogger()
	require.NotNil(t, first)

	// A second Initialize must not replace the stored logger.
	Initialize(config.LoggerConfig{Level: "error", Format: "console"}, sink)
	assert.Same(t, first, GetLogger())
}

func TestInitializeBadLevelDefaultsToInfo(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	sink := zapcore.AddSync(zaptest.NewTestingWriter(t))
	Initialize(config.LoggerConfig{Level: "verbose-ish", Format: "json"}, sink)

	logger := GetLogger()
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}
