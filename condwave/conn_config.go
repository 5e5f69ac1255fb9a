package condwave

import (
	"errors"
	"time"

	"github.com/vallen-systems/go-waveline/logger"
)

// ErrConnConfigNil indicates that a nil ConnectionConfig was provided.
var ErrConnConfigNil = errors.New("condwave: connection config is nil")

// ConnectionConfig represents the configuration parameters for a
// conditionWave connection.
type ConnectionConfig struct {
	// host specifies the IP address or hostname of the device.
	host string

	// controlPort specifies the TCP control port. The per-channel streaming
	// ports are derived from it (controlPort + channel number).
	// Defaults to 5432.
	controlPort int

	// dialTimeout defines the timeout for establishing the control and
	// streaming TCP connections.
	// Defaults to 3 seconds.
	dialTimeout time.Duration

	// readTimeout defines the per-line read timeout that terminates a
	// key=value response block. The device does not announce block lengths;
	// a line read that times out means the block is complete.
	// Defaults to 100 milliseconds.
	readTimeout time.Duration

	// payloadTimeout defines the read timeout for binary transient payloads.
	// Defaults to 1 second.
	payloadTimeout time.Duration

	// logger provides a logger instance for connection events and errors.
	logger logger.Logger
}

// NewConnectionConfig creates a connection configuration for the device at
// the given host with default values, then applies the provided options.
//
// Returns a pointer to the initialized ConnectionConfig and an error if any
// option is invalid.
func NewConnectionConfig(host string, opts ...ConnOption) (*ConnectionConfig, error) {
	cfg := &ConnectionConfig{
		host:           host,
		controlPort:    ControlPort,
		dialTimeout:    3 * time.Second,
		readTimeout:    100 * time.Millisecond,
		payloadTimeout: time.Second,
		logger:         logger.GetLogger(),
	}

	if host == "" {
		return cfg, errors.New("condwave: host is empty")
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

// WithControlPort sets the TCP control port. The per-channel streaming ports
// follow it (controlPort + channel number).
//
// The default value is 5432.
func WithControlPort(port int) ConnOption {
	return newConnOptFunc("WithControlPort", func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}
		if port < 1 || port > 65535-ChannelCount {
			return errors.New("condwave: control port out of range")
		}
		cfg.controlPort = port

		return nil
	})
}

// WithDialTimeout sets the timeout for establishing TCP connections.
// An error is returned if the timeout is outside the valid range
// (0.1-30 seconds).
//
// The default value is 3 seconds.
func WithDialTimeout(val time.Duration) ConnOption {
	return newConnOptFunc("WithDialTimeout", func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}
		if val < 100*time.Millisecond || val > 30*time.Second {
			return errors.New("condwave: dial timeout out of range [0.1, 30]")
		}
		cfg.dialTimeout = val

		return nil
	})
}

// WithReadTimeout sets the per-line read timeout that terminates a key=value
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
			return errors.New("condwave: read timeout out of range [0.01, 10]")
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
			return errors.New("condwave: payload timeout out of range [0.1, 30]")
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
