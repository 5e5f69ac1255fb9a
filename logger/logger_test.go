package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogger(t *testing.T) {
	original := GetLogger()
	defer SetLogger(original)

	t.Run("SetLogger", func(t *testing.T) {
		mockLogger := NewMockLogger()
		mockLogger.ExpectMessage(InfoLevel, "hello").Once()

		SetLogger(mockLogger)
		require.Same(t, Logger(mockLogger), GetLogger())

		Info("hello", "key", "value")
		mockLogger.AssertExpectations(t)
	})

	t.Run("SetLoggerNil", func(t *testing.T) {
		before := GetLogger()
		SetLogger(nil)
		assert.Same(t, before, GetLogger())
	})

	t.Run("PackageLevelForwarding", func(t *testing.T) {
		mockLogger := NewMockLogger()
		mockLogger.ExpectMessage(DebugLevel, "debug msg").Once()
		mockLogger.ExpectMessage(WarnLevel, "warn msg").Once()
		mockLogger.ExpectMessage(ErrorLevel, "error msg").Once()

		SetLogger(mockLogger)
		Debug("debug msg")
		Warn("warn msg", "count", 3)
		Error("error msg", "error", "boom")
		mockLogger.AssertExpectations(t)
	})
}

func TestSlogLogger(t *testing.T) {
	t.Run("LevelRoundTrip", func(t *testing.T) {
		levels := []Level{DebugLevel, InfoLevel, WarnLevel, ErrorLevel}
		l := NewSlog(InfoLevel, false)
		for _, level := range levels {
			l.SetLevel(level)
			assert.Equal(t, level, l.Level())
		}
	})

	t.Run("WithSharesLevel", func(t *testing.T) {
		l := NewSlog(InfoLevel, false)
		child := l.With("component", "test")

		l.SetLevel(DebugLevel)
		assert.Equal(t, DebugLevel, child.Level())
	})
}
