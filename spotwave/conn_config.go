package spotwave

import (
	"errors"
	"time"

	"github.com/vallen-systems/go-waveline/logger"
)

// ErrConnConfigNil indicates that a nil ConnectionConfig was provided.
var ErrConnConfigNil = errors.New("spotwave: connection config is nil")

// ConnectionConfig represents the configuration parameters for a spotWave
// connection.
type ConnectionConfig struct {
	// baudRate specifies the serial baud rate. The device communicates over
	// USB CDC, so the value is nominal.
	// Defaults to 115200.
	baudRate int

	// readTimeout defines the per-read timeout that terminates a key=value
	// response block. The device does not announce block lengths; a read
	// that times out means the block is complete.
	// Defaults to 100 milliseconds.
	readTimeout time.Duration

	// payloadTimeout defines the read timeout for binary transient payloads.
	// Defaults to 1 second.
	payloadTimeout time.Duration

	// logger provides a logger instance for connection events and errors.
	logger logger.Logger
}

// NewConnectionConfig creates a connection configuration with default values,
// then applies the provided options.
func NewConnectionConfig(opts ...ConnOption) (*ConnectionConfig, error) {
	cfg := &ConnectionConfig{
		baudRate:       defaultBaudRate,
		readTimeout:    100 * time.Millisecond,
		payloadTimeout: time.Second,
		logger:         logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// ConnOption represents a functional option for configuring a
// ConnectionConfig.
type ConnOption interface {
	apply(*ConnectionConfig) error
}

type connOptFunc struct {
	name      string
	applyFunc func(*ConnectionConfig) error
}

func (c *connOptFunc) apply(cfg *ConnectionConfig) error { return c.applyFunc(cfg) }

func newConnOptFunc(name string, f func(*ConnectionConfig) error) *connOptFunc {
	return &connOptFunc{name: name, applyFunc: f}
}

// WithBaudRate sets the serial baud rate.
//
// The default value is 115200.
func WithBaudRate(val int) ConnOption {
	return newConnOptFunc("WithBaudRate", func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}
		if val < 9600 {
			return errors.New("spotwave: baud rate out of range")
		}
		cfg.baudRate = val

		return nil
	})
}

// WithReadTimeout sets the per-read timeout that terminates a key=value
// response block. An error is returned if the timeout is outside the valid
// range (10 milliseconds - 10 seconds).
//
// The default value is 100 milliseconds.
func WithReadTimeout(val time.Duration) ConnOption {
	return newConnOptFunc("WithReadTimeout", func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}
		if val < 10*time.Millisecond || val > 10*time.Second {
			return errors.New("spotwave: read timeout out of range [0.01, 10]")
		}
		cfg.readTimeout = val

		return nil
	})
}

// WithPayloadTimeout sets the read timeout for binary transient payloads.
// An error is returned if the timeout is outside the valid range
// (0.1-30 seconds).
//
// The default value is 1 second.
func WithPayloadTimeout(val time.Duration) ConnOption {
	return newConnOptFunc("WithPayloadTimeout", func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}
		if val < 100*time.Millisecond || val > 30*time.Second {
			return errors.New("spotwave: payload timeout out of range [0.1, 30]")
		}
		cfg.payloadTimeout = val

		return nil
	})
}

// WithLogger sets the logger for the connection.
//
// The default logger is the global logger instance.
func WithLogger(l logger.Logger) ConnOption {
	return newConnOptFunc("WithLogger", func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}
		cfg.logger = l

		return nil
	})
}
