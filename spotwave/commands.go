package spotwave

import (
	"fmt"
	"time"

	"github.com/vallen-systems/go-waveline/wave"
)

// SetContinuousMode enables or disables continuous mode. In continuous mode
// the threshold is ignored and the record length is determined by the DDT.
//
// The internal device buffer holds about 200000 samples; with transient
// recording enabled, one record should not exceed half of that. Choose DDT
// and the decimation factor accordingly.
func (c *Conn) SetContinuousMode(enabled bool) error {
	return c.command(fmt.Sprintf("set_acq cont %d", boolInt(enabled)))
}

// SetDDT sets the duration discrimination time in microseconds.
func (c *Conn) SetDDT(microseconds int) error {
	return c.command(fmt.Sprintf("set_acq ddt %d", microseconds))
}

// SetStatusInterval sets the interval of periodic status records.
func (c *Conn) SetStatusInterval(interval time.Duration) error {
	return c.command(fmt.Sprintf("set_acq status_interval %d", interval.Milliseconds()))
}

// SetTREnabled enables or disables transient data recording.
func (c *Conn) SetTREnabled(enabled bool) error {
	return c.command(fmt.Sprintf("set_acq tr_enabled %d", boolInt(enabled)))
}

// SetTRDecimation sets the decimation factor for transient data. The
// effective sampling rate is Clock / factor.
func (c *Conn) SetTRDecimation(factor int) error {
	if factor < 1 {
		return fmt.Errorf("%w: %d (must be >= 1)", wave.ErrInvalidDecimation, factor)
	}

	return c.command(fmt.Sprintf("set_acq tr_decimation %d", factor))
}

// SetTRPretrigger sets the number of pre-trigger samples for transient data.
func (c *Conn) SetTRPretrigger(samples int) error {
	return c.command(fmt.Sprintf("set_acq tr_pre_trig %d", samples))
}

// SetTRPostduration sets the number of post-duration samples for transient
// data.
func (c *Conn) SetTRPostduration(samples int) error {
	return c.command(fmt.Sprintf("set_acq tr_post_dur %d", samples))
}

// SetCCT sets the coupling check transmitter (pulser) interval. Zero disables
// the pulser; the pulse amplitude is 3.3 V. If sync is set, the pulser is
// synchronized with the first sample of a GetData snapshot, signaled on the
// wire by a negative interval.
func (c *Conn) SetCCT(interval time.Duration, sync bool) error {
	seconds := interval.Seconds()
	if sync && seconds > 0 {
		seconds = -seconds
	}

	return c.command(fmt.Sprintf("set_cct %v", seconds))
}

// SetFilter sets the IIR filter frequencies and order. A nil highpass
// disables the highpass stage; a nil lowpass defaults to the Nyquist
// frequency.
func (c *Conn) SetFilter(highpassHz, lowpassHz *float64, order int) error {
	highpass := 0.0
	if highpassHz != nil {
		highpass = *highpassHz
	}
	lowpass := 0.5 * Clock // nyquist
	if lowpassHz != nil {
		lowpass = *lowpassHz
	}

	c.logger.Info("set filter",
		"highpass_khz", highpass/1e3, "lowpass_khz", lowpass/1e3, "order", order)

	return c.command(fmt.Sprintf("set_filter %v %v %d", highpass/1e3, lowpass/1e3, order))
}

// SetDateTime sets the device clock. The zero time means now.
func (c *Conn) SetDateTime(timestamp time.Time) error {
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	return c.command(fmt.Sprintf("set_datetime %s", timestamp.Format("2006-01-02 15:04:05")))
}

// SetThreshold sets the threshold for hit-based acquisition in microvolts.
func (c *Conn) SetThreshold(microvolts float64) error {
	return c.command(fmt.Sprintf("set_acq thr %v", microvolts))
}

// StartAcquisition starts data acquisition. No-op if already acquiring.
func (c *Conn) StartAcquisition() error {
	if !c.Connected() {
		return wave.ErrNotConnected
	}
	if c.stateMgr.IsAcquiring() {
		return nil
	}

	c.logger.Info("start data acquisition")
	if err := c.command("set_acq enabled 1"); err != nil {
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
	if err := c.command("set_acq enabled 0"); err != nil {
		return err
	}

	return c.stateMgr.ToIdle()
}

// ClearBuffer drains pending device output and resets the serial buffers.
func (c *Conn) ClearBuffer() error {
	c.cmdMutex.Lock()
	defer c.cmdMutex.Unlock()
	if c.port == nil {
		return wave.ErrNotConnected
	}

	if err := c.reader.Drain(c.cfg.readTimeout); err != nil {
		return err
	}
	if err := c.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("spotwave: reset input buffer: %w", err)
	}
	if err := c.port.ResetOutputBuffer(); err != nil {
		return fmt.Errorf("spotwave: reset output buffer: %w", err)
	}

	return nil
}

func boolInt(val bool) int {
	if val {
		return 1
	}
	return 0
}
