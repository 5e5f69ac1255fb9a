package spotwave

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/vallen-systems/go-waveline/internal/pool"
	"github.com/vallen-systems/go-waveline/wave"
)

const (
	// Poll round trips faster than this indicate an idle device.
	minPollRoundTrip = 5 * time.Millisecond
	// Idle backoff between polls, well below the device buffer horizon.
	pollIdleDelay = 10 * time.Millisecond
)

// GetAEData polls all pending AE records (hit and status data). The response
// block is prefixed with a line count.
//
// Lines with an unknown record type tag are logged and skipped, never fatal.
func (c *Conn) GetAEData() ([]*wave.AERecord, error) {
	if !c.Connected() {
		return nil, wave.ErrNotConnected
	}

	c.cmdMutex.Lock()
	defer c.cmdMutex.Unlock()
	if c.port == nil {
		return nil, wave.ErrNotConnected
	}

	if err := c.sendLocked("get_ae_data"); err != nil {
		return nil, err
	}

	header, err := c.reader.ReadLine(c.cfg.payloadTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: missing AE data line count: %v", wave.ErrProtocol, err)
	}
	lineCount, err := strconv.Atoi(string(bytes.TrimSpace(header)))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid AE data line count %q", wave.ErrProtocol, header)
	}

	records := make([]*wave.AERecord, 0, lineCount)
	for i := 0; i < lineCount; i++ {
		line, err := c.reader.ReadLine(c.cfg.payloadTimeout)
		if err != nil {
			return nil, fmt.Errorf("%w: AE data truncated after %d of %d lines",
				wave.ErrProtocol, i, lineCount)
		}

		record, err := wave.DecodeAELine(line, c.scaling)
		if err != nil {
			c.metrics.incParseErrCount()
			c.logger.Warn("unknown AE data record", "line", string(bytes.TrimSpace(line)))
			continue
		}
		if record == nil { // marker record start
			continue
		}

		c.metrics.incAERecordCount()
		records = append(records, record)
	}

	return records, nil
}

// GetTRData polls all pending transient data records. If raw is true the
// samples are kept as ADC values instead of being scaled to volts.
//
// The response is a sequence of header lines, each followed by its binary
// payload; a header without a positive TRAI terminates the sequence.
func (c *Conn) GetTRData(raw bool) ([]*wave.TRRecord, error) {
	if !c.Connected() {
		return nil, wave.ErrNotConnected
	}

	c.cmdMutex.Lock()
	defer c.cmdMutex.Unlock()
	if c.port == nil {
		return nil, wave.ErrNotConnected
	}

	if err := c.sendLocked("get_tr_data b"); err != nil {
		return nil, err
	}

	var records []*wave.TRRecord
	for {
		line, err := c.reader.ReadLine(c.cfg.payloadTimeout)
		if err != nil {
			return nil, fmt.Errorf("%w: TR data response not terminated: %v", wave.ErrProtocol, err)
		}

		header, err := wave.DecodeTRHeader(line)
		if err != nil {
			return nil, err
		}
		if header.TRAI <= 0 { // end of sequence
			break
		}

		payload := pool.GetBuf(2 * header.Samples)
		if err := c.reader.ReadFull(payload, c.cfg.payloadTimeout); err != nil {
			pool.PutBuf(payload)
			return nil, err
		}

		record, err := wave.NewTRRecord(header, payload, c.scaling(0), raw)
		pool.PutBuf(payload)
		if err != nil {
			return nil, err
		}

		c.metrics.incTRRecordCount()
		records = append(records, record)
	}

	return records, nil
}

// GetData reads a snapshot of transient data at the full sampling rate and
// returns the amplitudes in volts.
func (c *Conn) GetData(samples int) ([]float32, error) {
	adc, err := c.getDataRaw(samples)
	if err != nil {
		return nil, err
	}

	return wave.ScaleSamples(adc, c.adcToVolts), nil
}

// GetDataRaw reads a snapshot of transient data at the full sampling rate
// and returns the unscaled ADC values.
func (c *Conn) GetDataRaw(samples int) ([]int16, error) {
	return c.getDataRaw(samples)
}

func (c *Conn) getDataRaw(samples int) ([]int16, error) {
	if !c.Connected() {
		return nil, wave.ErrNotConnected
	}
	if samples < 1 {
		return nil, fmt.Errorf("%w: %d samples (must be >= 1)", wave.ErrProtocol, samples)
	}

	c.cmdMutex.Lock()
	defer c.cmdMutex.Unlock()
	if c.port == nil {
		return nil, wave.ErrNotConnected
	}

	if err := c.sendLocked(fmt.Sprintf("get_data b %d", samples)); err != nil {
		return nil, err
	}

	payload := pool.GetBuf(2 * samples)
	defer pool.PutBuf(payload)
	if err := c.reader.ReadFull(payload, c.cfg.payloadTimeout); err != nil {
		return nil, err
	}

	return wave.DecodeSamples(payload), nil
}

// Acquire starts data acquisition and returns a channel of AE and transient
// records, polled continuously in a background task. If raw is true,
// transient samples are kept as ADC values instead of being scaled to volts.
//
// The record channel is closed when ctx is cancelled, the connection is
// closed, or a poll fails. Acquisition is stopped exactly once on every exit
// path. Delivery is lossless: when the consumer falls behind the channel
// buffer, the poll loop blocks and the device buffers on its side.
func (c *Conn) Acquire(ctx context.Context, raw bool) (<-chan wave.Record, error) {
	if !c.Connected() {
		return nil, wave.ErrNotConnected
	}

	if err := c.StartAcquisition(); err != nil {
		return nil, err
	}

	records := make(chan wave.Record, 1024)

	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() {
			// Close() stops a running acquisition itself before the task
			// cleanup runs; only stop here if that has not happened yet.
			if c.stateMgr.IsAcquiring() {
				if err := c.StopAcquisition(); err != nil {
					c.logger.Error("failed to stop acquisition", "error", err)
				}
			}
			close(records)
		})
	}

	err := c.taskMgr.StartWithCleanup("acquirePollTask", func() bool {
		start := time.Now()

		aeRecords, err := c.GetAEData()
		if err != nil {
			// A poll can lose the race against a concurrent Close; that is
			// a normal shutdown, not a failure.
			if !errors.Is(err, wave.ErrNotConnected) {
				c.logger.Error("failed to poll AE data", "error", err)
			}
			return false
		}
		for _, record := range aeRecords {
			if !c.emit(ctx, records, record) {
				return false
			}
		}

		trRecords, err := c.GetTRData(raw)
		if err != nil {
			if !errors.Is(err, wave.ErrNotConnected) {
				c.logger.Error("failed to poll TR data", "error", err)
			}
			return false
		}
		for _, record := range trRecords {
			if !c.emit(ctx, records, record) {
				return false
			}
		}

		// A fast empty round trip means the device buffer is drained.
		if time.Since(start) < minPollRoundTrip {
			idle := pool.GetTimer(pollIdleDelay)
			select {
			case <-ctx.Done():
				pool.PutTimer(idle)
				return false
			case <-idle.C:
				pool.PutTimer(idle)
			}
		}

		return ctx.Err() == nil
	}, stop)
	if err != nil {
		stop()
		return nil, err
	}

	return records, nil
}

// emit delivers a record, blocking until the consumer takes it. Records are
// never dropped; a slow consumer throttles the poll loop and the device
// buffers on its side. False means the acquisition or connection ended.
func (c *Conn) emit(ctx context.Context, records chan<- wave.Record, record wave.Record) bool {
	select {
	case <-ctx.Done():
		return false
	case <-c.taskMgr.Context().Done():
		return false
	case records <- record:
		return true
	}
}
