package condwave

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/vallen-systems/go-waveline/logger"
	"github.com/vallen-systems/go-waveline/wave"
)

// StreamState is the lifecycle state of a Streamer.
type StreamState int32

const (
	// StreamConnecting means the background dial is still in flight.
	StreamConnecting StreamState = iota
	// StreamStreaming means the stream socket is connected and sample blocks
	// are being read.
	StreamStreaming
	// StreamClosed means the stream has ended; check Err for the cause.
	StreamClosed
)

func (s StreamState) String() string {
	switch s {
	case StreamConnecting:
		return "connecting"
	case StreamStreaming:
		return "streaming"
	case StreamClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Block is one fixed-size block of streamed samples from a single channel.
type Block struct {
	// Time is the start time of the block in seconds since acquisition start.
	Time float64
	// Data holds the samples in volts; nil if the stream was opened raw.
	Data []float32
	// DataRaw holds the unscaled ADC samples; nil unless the stream was
	// opened raw.
	DataRaw []int16
}

// Streamer reads the continuous sample stream of one channel from its
// dedicated TCP socket.
//
// Open all streamers before StartAcquisition: the device starts pushing
// samples immediately, and samples sent before the socket is connected are
// lost.
type Streamer struct {
	channel   int
	blocksize int
	raw       bool
	toVolts   float64
	interval  float64 // block duration in seconds

	logger  logger.Logger
	onClose func(*Streamer)

	state      atomic.Int32
	blockCount atomic.Uint64
	conn       net.Conn
	connMu     sync.Mutex

	blocks chan Block
	done   chan struct{}
	err    error
	errMu  sync.Mutex

	closeOnce sync.Once
}

// Stream opens the sample stream of the given channel with the given block
// size in samples. If raw is true, blocks carry unscaled ADC values.
//
// The socket connection is established in the background; StartAcquisition
// waits for all pending stream connections before starting the device.
// The per-channel decimation and range in effect at call time determine the
// block timing and scaling for the lifetime of the stream.
func (c *Conn) Stream(channel, blocksize int, raw bool) (*Streamer, error) {
	if !c.Connected() {
		return nil, wave.ErrNotConnected
	}
	if err := c.checkChannel(channel, false); err != nil {
		return nil, err
	}
	if blocksize < 1 {
		return nil, fmt.Errorf("%w: %d (must be >= 1)", wave.ErrInvalidBlockSize, blocksize)
	}

	decimation := float64(c.settingsFor(channel).decimation.Load())
	scaling := c.scalingFor(channel)

	s := &Streamer{
		channel:   channel,
		blocksize: blocksize,
		raw:       raw,
		toVolts:   scaling.ADCToVolts,
		interval:  decimation * float64(blocksize) / MaxSampleRate,
		logger:    c.logger.With("stream_channel", channel),
		onClose:   c.removeStreamer,
		blocks:    make(chan Block, 16),
		done:      make(chan struct{}),
	}

	c.streamMutex.Lock()
	c.streamers = append(c.streamers, s)
	c.streamMutex.Unlock()

	address := net.JoinHostPort(c.cfg.host, strconv.Itoa(c.cfg.controlPort+channel))
	c.streamDials.Add(1)
	go func() {
		defer c.streamDials.Done()

		s.logger.Info("open stream", "address", address)
		conn, err := net.DialTimeout("tcp", address, c.cfg.dialTimeout)
		if err != nil {
			s.fail(fmt.Errorf("condwave: dial stream %s: %w", address, err))
			close(s.blocks)
			return
		}

		s.connMu.Lock()
		if StreamState(s.state.Load()) == StreamClosed {
			s.connMu.Unlock()
			_ = conn.Close()
			close(s.blocks)
			return
		}
		s.conn = conn
		s.state.Store(int32(StreamStreaming))
		s.connMu.Unlock()

		// The reader task owns the block channel; it is closed by the task
		// cleanup so a pending send can never race the close.
		err = c.taskMgr.StartWithCleanup(fmt.Sprintf("streamReadTask-ch%d", channel), func() bool {
			return s.readBlock(&c.metrics)
		}, func() { close(s.blocks) })
		if err != nil {
			s.fail(err)
			close(s.blocks)
		}
	}()

	return s, nil
}

// removeStreamer drops a closed streamer from the connection's registry so
// that long-lived connections cycling many streams do not accumulate entries.
func (c *Conn) removeStreamer(s *Streamer) {
	c.streamMutex.Lock()
	defer c.streamMutex.Unlock()

	for i, other := range c.streamers {
		if other == s {
			c.streamers = append(c.streamers[:i], c.streamers[i+1:]...)
			return
		}
	}
}

// Blocks returns the channel of streamed sample blocks. It is closed when the
// stream ends; check Err for the cause.
func (s *Streamer) Blocks() <-chan Block {
	return s.blocks
}

// State returns the current stream state.
func (s *Streamer) State() StreamState {
	return StreamState(s.state.Load())
}

// Err returns the error that ended the stream, or nil after a clean close.
func (s *Streamer) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()

	return s.err
}

// Close terminates the stream and closes its socket. Safe to call multiple
// times and concurrently with a blocked Blocks receive.
func (s *Streamer) Close() error {
	s.fail(nil)
	return nil
}

func (s *Streamer) fail(err error) {
	s.closeOnce.Do(func() {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()

		s.connMu.Lock()
		s.state.Store(int32(StreamClosed))
		if s.conn != nil {
			_ = s.conn.Close()
		}
		s.connMu.Unlock()

		close(s.done)
		if err != nil {
			s.logger.Error("stream terminated", "error", err)
		} else {
			s.logger.Info("stream closed")
		}

		if s.onClose != nil {
			s.onClose(s)
		}
	})
}

// readBlock reads one full block from the stream socket. Returning false ends
// the reader task.
func (s *Streamer) readBlock(metrics *AcquisitionMetrics) bool {
	payload := make([]byte, 2*s.blocksize)
	if _, err := io.ReadFull(s.conn, payload); err != nil {
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			// clean end of stream
			s.fail(nil)
		case errors.Is(err, io.ErrUnexpectedEOF):
			s.fail(fmt.Errorf("%w: stream ended mid-block: %v", wave.ErrSampleCountMismatch, err))
		default:
			s.fail(fmt.Errorf("condwave: read stream block: %w", err))
		}

		return false
	}

	metrics.incStreamBlockRecvCount()
	metrics.addStreamByteRecvCount(uint64(len(payload)))

	block := Block{Time: float64(s.blockCount.Add(1)-1) * s.interval}
	if s.raw {
		block.DataRaw = decodeRawBlock(payload)
	} else {
		block.Data = decodeVoltBlock(payload, s.toVolts)
	}

	// Block until the consumer takes the block. Backpressure propagates to
	// the device through the TCP receive window; no block is ever dropped.
	select {
	case s.blocks <- block:
		return true
	case <-s.done:
		return false
	}
}

func decodeRawBlock(payload []byte) []int16 {
	data := make([]int16, len(payload)/2)
	for i := range data {
		data[i] = int16(binary.LittleEndian.Uint16(payload[2*i:]))
	}

	return data
}

func decodeVoltBlock(payload []byte, toVolts float64) []float32 {
	data := make([]float32, len(payload)/2)
	for i := range data {
		code := int16(binary.LittleEndian.Uint16(payload[2*i:]))
		data[i] = float32(float64(code) * toVolts)
	}

	return data
}
