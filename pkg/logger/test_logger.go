package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// NewTestLogger returns a logger that writes through t.Log, so log output is
// attached to the test that produced it.
func NewTestLogger(t zaptest.TestingT) *Logger {
	return &Logger{Logger: zaptest.NewLogger(t, zaptest.Level(zap.DebugLevel))}
}
