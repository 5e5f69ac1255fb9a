package logger

import "sync/atomic"

var defLogger atomic.Pointer[Logger]

func init() {
	def := Logger(newSlog(InfoLevel, false))
	defLogger.Store(&def)
}

// GetLogger returns the package-level default logger. It is used by every
// driver connection that is not given an explicit logger.
func GetLogger() Logger {
	return *defLogger.Load()
}

// SetLogger replaces the package-level default logger. Connections created
// afterwards without an explicit logger will use it.
func SetLogger(l Logger) {
	if l == nil {
		return
	}
	defLogger.Store(&l)
}

// Debug logs a message at DebugLevel with the default logger.
func Debug(msg string, keysAndValues ...any) {
	GetLogger().Debug(msg, keysAndValues...)
}

// Info logs a message at InfoLevel with the default logger.
func Info(msg string, keysAndValues ...any) {
	GetLogger().Info(msg, keysAndValues...)
}

// Warn logs a message at WarnLevel with the default logger.
func Warn(msg string, keysAndValues ...any) {
	GetLogger().Warn(msg, keysAndValues...)
}

// Error logs a message at ErrorLevel with the default logger.
func Error(msg string, keysAndValues ...any) {
	GetLogger().Error(msg, keysAndValues...)
}

// Fatal logs a message at FatalLevel with the default logger, then exits.
func Fatal(msg string, keysAndValues ...any) {
	GetLogger().Fatal(msg, keysAndValues...)
}

// SetLevel sets the minimum enabled level of the default logger.
func SetLevel(level Level) {
	GetLogger().SetLevel(level)
}

// With creates a child of the default logger with added structured context.
func With(keyValues ...any) Logger {
	return GetLogger().With(keyValues...)
}
