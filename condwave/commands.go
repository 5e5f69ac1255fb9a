package condwave

import (
	"errors"
	"fmt"
	"time"

	"github.com/vallen-systems/go-waveline/internal/pool"
	"github.com/vallen-systems/go-waveline/wave"
)

// SetRange sets the input range of the given channel (0 for all channels).
// rangeVolts must be one of Ranges. The local settings mirror is updated for
// every addressed channel after the command is sent.
func (c *Conn) SetRange(channel int, rangeVolts float64) error {
	if err := c.checkChannel(channel, true); err != nil {
		return err
	}

	rangeIndex := -1
	for i, r := range Ranges {
		if r == rangeVolts {
			rangeIndex = i
			break
		}
	}
	if rangeIndex < 0 {
		return fmt.Errorf("%w: %v V (valid: %v)", wave.ErrInvalidRange, rangeVolts, Ranges)
	}

	c.logger.Info("set range", "target", channelStr(channel), "range_volts", rangeVolts)
	if err := c.command(fmt.Sprintf("set_adc_range %d @%d", rangeIndex, channel)); err != nil {
		return err
	}

	c.eachMirrorChannel(channel, func(s *channelSettings) {
		s.rangeIndex.Store(int32(rangeIndex))
	})

	return nil
}

// SetChannel enables or disables the given channel (0 for all channels).
func (c *Conn) SetChannel(channel int, enabled bool) error {
	if err := c.checkChannel(channel, true); err != nil {
		return err
	}

	return c.command(fmt.Sprintf("set_acq enabled %d @%d", boolInt(enabled), channel))
}

// SetContinuousMode enables or disables continuous mode on the given channel
// (0 for all channels). In continuous mode the threshold is ignored and the
// record length is determined by the DDT.
func (c *Conn) SetContinuousMode(channel int, enabled bool) error {
	if err := c.checkChannel(channel, true); err != nil {
		return err
	}

	return c.command(fmt.Sprintf("set_acq cont %d @%d", boolInt(enabled), channel))
}

// SetDDT sets the duration discrimination time in microseconds on the given
// channel (0 for all channels).
func (c *Conn) SetDDT(channel int, microseconds int) error {
	if err := c.checkChannel(channel, true); err != nil {
		return err
	}

	return c.command(fmt.Sprintf("set_acq ddt %d @%d", microseconds, channel))
}

// SetStatusInterval sets the interval of periodic status records on the
// given channel (0 for all channels).
func (c *Conn) SetStatusInterval(channel int, interval time.Duration) error {
	if err := c.checkChannel(channel, true); err != nil {
		return err
	}

	return c.command(fmt.Sprintf("set_acq status_interval %d @%d", interval.Milliseconds(), channel))
}

// SetTREnabled enables or disables transient data recording on the given
// channel (0 for all channels).
func (c *Conn) SetTREnabled(channel int, enabled bool) error {
	if err := c.checkChannel(channel, true); err != nil {
		return err
	}

	return c.command(fmt.Sprintf("set_acq tr_enabled %d @%d", boolInt(enabled), channel))
}

// SetTRDecimation sets the decimation factor for transient and streaming
// data on the given channel (0 for all channels). The effective sampling
// rate is MaxSampleRate / factor. The factor must be in [1, 1000]. The local
// settings mirror is updated for every addressed channel.
func (c *Conn) SetTRDecimation(channel int, factor int) error {
	if err := c.checkChannel(channel, true); err != nil {
		return err
	}
	if factor < 1 || factor > 1000 {
		return fmt.Errorf("%w: %d (valid: [1, 1000])", wave.ErrInvalidDecimation, factor)
	}

	if err := c.command(fmt.Sprintf("set_acq tr_decimation %d @%d", factor, channel)); err != nil {
		return err
	}

	c.eachMirrorChannel(channel, func(s *channelSettings) {
		s.decimation.Store(int32(factor))
	})

	return nil
}

// SetTRPretrigger sets the number of pre-trigger samples for transient data
// on the given channel (0 for all channels).
func (c *Conn) SetTRPretrigger(channel int, samples int) error {
	if err := c.checkChannel(channel, true); err != nil {
		return err
	}

	return c.command(fmt.Sprintf("set_acq tr_pre_trig %d @%d", samples, channel))
}

// SetTRPostduration sets the number of post-duration samples for transient
// data on the given channel (0 for all channels).
func (c *Conn) SetTRPostduration(channel int, samples int) error {
	if err := c.checkChannel(channel, true); err != nil {
		return err
	}

	return c.command(fmt.Sprintf("set_acq tr_post_dur %d @%d", samples, channel))
}

// SetFilter sets the IIR filter frequencies and order on the given channel
// (0 for all channels). A nil highpass or lowpass frequency disables the
// corresponding filter stage.
func (c *Conn) SetFilter(channel int, highpassHz, lowpassHz *float64, order int) error {
	if err := c.checkChannel(channel, true); err != nil {
		return err
	}

	khzOrNone := func(freq *float64) string {
		if freq == nil {
			return "none"
		}
		return fmt.Sprintf("%v", *freq/1e3)
	}

	return c.command(fmt.Sprintf("set_filter %s %s %d @%d",
		khzOrNone(highpassHz), khzOrNone(lowpassHz), order, channel))
}

// SetThreshold sets the threshold for hit-based acquisition in microvolts on
// the given channel (0 for all channels).
func (c *Conn) SetThreshold(channel int, microvolts float64) error {
	if err := c.checkChannel(channel, true); err != nil {
		return err
	}

	return c.command(fmt.Sprintf("set_acq thr %v @%d", microvolts, channel))
}

// StartPulsing starts the coupling-check pulser on the given channel (0 for
// all channels). count is the number of pulses per channel (0 for infinite)
// and should be even, since pulses are generated by a square wave that must
// end LOW. cycles is the number of pulse cycles through all channels.
func (c *Conn) StartPulsing(channel int, interval time.Duration, count, cycles int) error {
	if err := c.checkChannel(channel, true); err != nil {
		return err
	}
	if count%2 != 0 {
		c.logger.Warn("number of pulse counts should be even", "count", count)
	}

	c.logger.Info("start pulsing",
		"target", channelStr(channel), "interval", interval, "count", count, "cycles", cycles)

	return c.command(fmt.Sprintf("start_pulsing %v %d %d @%d",
		interval.Seconds(), count, cycles, channel))
}

// StopPulsing stops the pulser.
func (c *Conn) StopPulsing() error {
	c.logger.Info("stop pulsing")
	return c.command("stop_pulsing")
}

// StartAcquisition starts data acquisition. No-op if already acquiring.
//
// It first waits for all pending stream socket connection attempts: the
// device begins pushing samples on the per-channel ports immediately upon
// receiving start_acq, and samples sent to a not yet connected socket are
// lost irretrievably.
func (c *Conn) StartAcquisition() error {
	if !c.Connected() {
		return wave.ErrNotConnected
	}
	if c.stateMgr.IsAcquiring() {
		return nil
	}

	c.logger.Debug("wait for stream connections")
	c.streamDials.Wait()

	c.logger.Info("start data acquisition")
	if err := c.command("start_acq"); err != nil {
		return err
	}

	return c.stateMgr.ToAcquiring()
}

// StopAcquisition stops data acquisition. No-op if not acquiring.
func (c *Conn) StopAcquisition() error {
	if !c.Connected() {
		return wave.ErrNotConnected
	}
	if !c.stateMgr.IsAcquiring() {
		return nil
	}

	c.logger.Info("stop data acquisition")
	if err := c.command("stop_acq"); err != nil {
		return err
	}

	return c.stateMgr.ToIdle()
}

// GetAEData polls all pending AE records (hit and status data).
//
// Lines with an unknown record type tag are logged and skipped, never fatal.
func (c *Conn) GetAEData() ([]*wave.AERecord, error) {
	if !c.Connected() {
		return nil, wave.ErrNotConnected
	}

	c.cmdMutex.Lock()
	defer c.cmdMutex.Unlock()
	if c.conn == nil {
		return nil, wave.ErrNotConnected
	}

	if err := c.sendLocked("get_ae_data"); err != nil {
		return nil, err
	}

	var records []*wave.AERecord
	for {
		line, err := c.readLineLocked(c.cfg.readTimeout)
		if err != nil {
			if errors.Is(err, errReadTimeout) {
				return nil, fmt.Errorf("%w: AE data response not terminated", wave.ErrProtocol)
			}
			return nil, err
		}
		if len(trimLine(line)) == 0 { // last line is an empty new line
			break
		}

		record, err := wave.DecodeAELine(line, c.scalingFor)
		if err != nil {
			c.metrics.incParseErrCount()
			c.logger.Warn("unknown AE data record", "line", string(trimLine(line)))
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
// A short binary payload read or a sample count mismatch is a framing
// corruption and fails with wave.ErrSampleCountMismatch.
func (c *Conn) GetTRData(raw bool) ([]*wave.TRRecord, error) {
	if !c.Connected() {
		return nil, wave.ErrNotConnected
	}

	c.cmdMutex.Lock()
	defer c.cmdMutex.Unlock()
	if c.conn == nil {
		return nil, wave.ErrNotConnected
	}

	if err := c.sendLocked("get_tr_data"); err != nil {
		return nil, err
	}

	var records []*wave.TRRecord
	for {
		line, err := c.readLineLocked(c.cfg.readTimeout)
		if err != nil {
			if errors.Is(err, errReadTimeout) {
				return nil, fmt.Errorf("%w: TR data response not terminated", wave.ErrProtocol)
			}
			return nil, err
		}
		if len(trimLine(line)) == 0 { // last line is an empty new line
			break
		}

		header, err := wave.DecodeTRHeader(line)
		if err != nil {
			return nil, err
		}

		payload := pool.GetBuf(2 * header.Samples)
		if err := c.readExactLocked(payload); err != nil {
			pool.PutBuf(payload)
			return nil, err
		}

		record, err := wave.NewTRRecord(header, payload, c.scalingFor(header.Channel), raw)
		pool.PutBuf(payload)
		if err != nil {
			return nil, err
		}

		c.metrics.incTRRecordCount()
		records = append(records, record)
	}

	return records, nil
}

func boolInt(val bool) int {
	if val {
		return 1
	}
	return 0
}
