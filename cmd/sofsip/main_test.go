package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arzzra/sofsip/pkg/logging"
)

func TestNewLoggerLevel(t *testing.T) {
	l := newLogger(rootFlags{logLevel: "error"})
	assert.True(t, l.IsEnabled(logging.LevelError))
	assert.False(t, l.IsEnabled(logging.LevelWarn))

	l = newLogger(rootFlags{logLevel: "error", debug: true})
	assert.True(t, l.IsEnabled(logging.LevelDebug))
	assert.False(t, l.IsEnabled(logging.LevelTrace))

	l = newLogger(rootFlags{logLevel: "trace", debug: true, logFormat: "JSON"})
	assert.True(t, l.IsEnabled(logging.LevelTrace))
}

func TestEnvOr(t *testing.T) {
	t.Setenv("SOFSIP_LOG_LEVEL", "debug")
	assert.Equal(t, "debug", envOr("SOFSIP_LOG_LEVEL", "warn"))

	t.Setenv("SOFSIP_LOG_LEVEL", "")
	assert.Equal(t, "warn", envOr("SOFSIP_LOG_LEVEL", "warn"))
}

func TestRootFlagsLogLevelFromEnv(t *testing.T) {
	t.Setenv("SOFSIP_LOG_LEVEL", "info")
	cmd := newRootCmd(new(int))

	flag := cmd.Flags().Lookup("log-level")
	assert.NotNil(t, flag)
	assert.Equal(t, "info", flag.DefValue)
}
