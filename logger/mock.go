package logger

import (
	"fmt"

	"github.com/stretchr/testify/mock"
)

// MockLogger is a testify-based mock implementation of the Logger interface.
// Tests register expectations with the embedded mock.Mock, or use
// ExpectMessage for the common case of asserting that a message is logged.
type MockLogger struct {
	mock.Mock
}

var _ Logger = (*MockLogger)(nil)

// NewMockLogger creates an empty MockLogger. Every logged call must be
// matched by an expectation.
func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

// ExpectMessage registers an expectation that msg is logged at the given
// level, with any key-value pairs.
func (m *MockLogger) ExpectMessage(level Level, msg string) *mock.Call {
	var method string
	switch level {
	case DebugLevel:
		method = "Debug"
	case InfoLevel:
		method = "Info"
	case WarnLevel:
		method = "Warn"
	case ErrorLevel:
		method = "Error"
	case FatalLevel:
		method = "Fatal"
	default:
		panic(fmt.Sprintf("logger: unknown level %d", level))
	}

	return m.On(method, msg, mock.Anything)
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) { m.Called(msg, keysAndValues) }

func (m *MockLogger) Info(msg string, keysAndValues ...any) { m.Called(msg, keysAndValues) }

func (m *MockLogger) Warn(msg string, keysAndValues ...any) { m.Called(msg, keysAndValues) }

func (m *MockLogger) Error(msg string, keysAndValues ...any) { m.Called(msg, keysAndValues) }

func (m *MockLogger) Fatal(msg string, keysAndValues ...any) { m.Called(msg, keysAndValues) }

func (m *MockLogger) SetLevel(level Level) {
	m.Called(level)
}

func (m *MockLogger) Level() Level {
	args := m.Called()
	return args.Get(0).(Level)
}

func (m *MockLogger) With(keyValues ...any) Logger {
	args := m.Called(keyValues...)
	return args.Get(0).(Logger)
}
