package condwave

import (
	"context"
	"errors"
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

// Acquire starts data acquisition and returns a channel of AE and transient
// records, polled continuously in a background task. If raw is true, transient
// samples are kept as ADC values instead of being scaled to volts.
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
