package condwave

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/vallen-systems/go-waveline/logger"
	"github.com/vallen-systems/go-waveline/wave"
)

const (
	// ControlPort is the default TCP control port of the device.
	ControlPort = 5432
	// ChannelCount is the number of physical input channels.
	ChannelCount = 2
	// MaxSampleRate is the maximum sampling rate in Hz.
	MaxSampleRate = 10_000_000

	defaultRangeIndex = 0
	defaultDecimation = 1

	minFirmwareVersion = "2.2"
)

// Ranges lists the selectable input ranges in volts, indexed by range index.
var Ranges = []float64{0.05, 5.0}

// Default ADC-to-volts factors per range, replaced by the device-reported
// calibration at connect time.
var defaultADCToVolts = []float64{1.5625e-06, 1.5625e-04}

// Conn represents a connection to a conditionWave device.
//
// All command methods are safe for concurrent use; command/response round
// trips on the control socket are serialized internally. Per-channel sample
// streams run on dedicated sockets and are independent of the control path.
type Conn struct {
	cfg    *ConnectionConfig
	logger logger.Logger

	cmdMutex sync.Mutex // serializes control-socket round trips
	conn     net.Conn
	reader   *bufio.Reader

	stateMgr *wave.AcqStateMgr
	taskMgr  *wave.TaskManager

	settings   *xsync.MapOf[int, *channelSettings]
	adcToVolts []float64 // per-range calibration, fixed after Connect
	adcToEU    []float64

	streamMutex sync.Mutex
	streamers   []*Streamer
	streamDials sync.WaitGroup // pending stream socket connection attempts

	metrics AcquisitionMetrics
}

// Info is the immutable device information snapshot fetched at connect time.
type Info struct {
	// FirmwareVersion is the firmware version string, dotted decimal.
	FirmwareVersion string
	// FPGAVersion is the FPGA bitstream version string.
	FPGAVersion string
	// ChannelCount is the number of input channels.
	ChannelCount int
	// RangeCount is the number of selectable input ranges.
	RangeCount int
	// MaxSampleRate is the maximum sampling rate in Hz.
	MaxSampleRate float64
	// ADCToVolts holds the conversion factor from ADC values to volts for
	// every selectable range.
	ADCToVolts []float64
}

// Status is a transient device status snapshot; it is re-fetched on every
// GetStatus call and never cached.
type Status struct {
	// Temperature is the device temperature in °C.
	Temperature float64
	// BufferSize is the data buffer usage in bytes.
	BufferSize int
}

// Setup mirrors the acquisition configuration of one channel.
type Setup struct {
	// ADCRangeVolts is the selected input range in volts.
	ADCRangeVolts float64
	// ADCToVolts is the conversion factor from ADC values to volts.
	ADCToVolts float64
	// FilterHighpassHz is the highpass frequency in Hz, nil if disabled.
	FilterHighpassHz *float64
	// FilterLowpassHz is the lowpass frequency in Hz, nil if disabled.
	FilterLowpassHz *float64
	// FilterOrder is the filter order.
	FilterOrder int
	// Enabled reports whether the channel is enabled.
	Enabled bool
	// ContinuousMode reports whether continuous mode is enabled.
	ContinuousMode bool
	// ThresholdVolts is the threshold for hit-based acquisition in volts.
	ThresholdVolts float64
	// DDTSeconds is the duration discrimination time in seconds.
	DDTSeconds float64
	// StatusIntervalSeconds is the status interval in seconds.
	StatusIntervalSeconds float64
	// TREnabled reports whether transient data recording is enabled.
	TREnabled bool
	// TRDecimation is the decimation factor for transient data.
	TRDecimation int
	// TRPretriggerSamples is the number of pre-trigger samples.
	TRPretriggerSamples int
	// TRPostdurationSamples is the number of post-duration samples.
	TRPostdurationSamples int
}

// NewConn creates a new Conn with the given configuration. The connection is
// not opened; call Connect.
func NewConn(cfg *ConnectionConfig) (*Conn, error) {
	if cfg == nil {
		return nil, ErrConnConfigNil
	}

	c := &Conn{
		cfg:        cfg,
		logger:     cfg.logger,
		stateMgr:   wave.NewAcqStateMgr(cfg.logger),
		adcToVolts: defaultADCToVolts,
	}
	c.adcToEU = computeADCToEU(c.adcToVolts)
	c.resetSettings()

	return c, nil
}

func computeADCToEU(adcToVolts []float64) []float64 {
	out := make([]float64, len(adcToVolts))
	for i, factor := range adcToVolts {
		out[i] = wave.ADCToEUFactor(factor, MaxSampleRate)
	}

	return out
}

// Connected reports whether the control connection is open.
func (c *Conn) Connected() bool {
	return !c.stateMgr.IsDisconnected()
}

// State returns the current acquisition state.
func (c *Conn) State() wave.AcqState {
	return c.stateMgr.State()
}

// GetMetrics returns the acquisition metrics of the connection.
func (c *Conn) GetMetrics() *AcquisitionMetrics {
	return &c.metrics
}

// Connect opens the control connection and initializes the device session.
//
// It validates the firmware version (failing with wave.ErrFirmwareTooOld if
// the device is too old), replaces the default calibration with the
// device-reported factors, and applies the default per-channel settings
// (smallest range, decimation 1). No-op if already connected.
func (c *Conn) Connect(ctx context.Context) error {
	if c.Connected() {
		return nil
	}

	address := net.JoinHostPort(c.cfg.host, strconv.Itoa(c.cfg.controlPort))
	c.logger.Info("open connection", "address", address)

	dialer := &net.Dialer{Timeout: c.cfg.dialTimeout, KeepAlive: 30 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("condwave: dial %s: %w", address, err)
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.taskMgr = wave.NewTaskManager(ctx, c.logger)
	c.resetSettings()
	_ = c.stateMgr.ToIdle()

	info, err := c.GetInfo()
	if err != nil {
		c.teardown()
		return err
	}

	if err := wave.CheckFirmware(info.FirmwareVersion, minFirmwareVersion, 10); err != nil {
		c.teardown()
		return err
	}

	if len(info.ADCToVolts) > 0 {
		c.adcToVolts = info.ADCToVolts
		c.adcToEU = computeADCToEU(info.ADCToVolts)
	}
	c.logger.Debug("ADC to volts factors", "factors", c.adcToVolts)

	c.logger.Info("apply default settings")
	if err := c.SetRange(0, Ranges[defaultRangeIndex]); err != nil {
		c.teardown()
		return err
	}
	if err := c.SetTRDecimation(0, defaultDecimation); err != nil {
		c.teardown()
		return err
	}

	return nil
}

// Close closes the connection gracefully. It stops a running acquisition,
// terminates the polling loop and all stream readers, and closes the control
// socket. No-op if not connected.
func (c *Conn) Close() error {
	if !c.Connected() {
		return nil
	}

	if c.stateMgr.IsAcquiring() {
		if err := c.StopAcquisition(); err != nil {
			c.logger.Error("failed to stop acquisition on close", "error", err)
		}
	}

	c.logger.Info("close connection", "host", c.cfg.host, "port", c.cfg.controlPort)
	c.teardown()

	return nil
}

func (c *Conn) teardown() {
	c.stateMgr.ToDisconnected()

	if c.taskMgr != nil {
		c.taskMgr.Stop()
	}

	c.streamMutex.Lock()
	streamers := c.streamers
	c.streamers = nil
	c.streamMutex.Unlock()
	for _, s := range streamers {
		_ = s.Close()
	}

	c.cmdMutex.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
		c.reader = nil
	}
	c.cmdMutex.Unlock()

	if c.taskMgr != nil {
		c.taskMgr.Wait()
	}
}

// sendLocked writes one newline-terminated command. Callers must hold
// cmdMutex and have verified the connection.
func (c *Conn) sendLocked(command string) error {
	c.logger.Debug("send command", "command", command)
	c.metrics.incCommandSendCount()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.dialTimeout)); err != nil {
		return fmt.Errorf("condwave: set write deadline: %w", err)
	}
	if _, err := c.conn.Write(append([]byte(command), '\n')); err != nil {
		return fmt.Errorf("condwave: send %q: %w", command, err)
	}

	return nil
}

// command sends a fire-and-forget command.
func (c *Conn) command(command string) error {
	if !c.Connected() {
		return wave.ErrNotConnected
	}

	c.cmdMutex.Lock()
	defer c.cmdMutex.Unlock()
	if c.conn == nil {
		return wave.ErrNotConnected
	}

	return c.sendLocked(command)
}

// readLineLocked reads one response line with the given timeout. A timeout
// before any byte of a new line is reported as errReadTimeout; callers use
// it to detect the end of a key=value block.
func (c *Conn) readLineLocked(timeout time.Duration) ([]byte, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("condwave: set read deadline: %w", err)
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		if isTimeout(err) {
			return nil, errReadTimeout
		}
		return nil, fmt.Errorf("condwave: read line: %w", err)
	}

	return line, nil
}

var errReadTimeout = errors.New("condwave: line read timeout")

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// requestKVBlock sends a command and reads its key=value response block,
// terminated by the per-line read timeout. An empty block yields
// wave.ErrProtocol ("could not get <name>").
func (c *Conn) requestKVBlock(name, command string) (map[string]string, error) {
	if !c.Connected() {
		return nil, wave.ErrNotConnected
	}

	c.cmdMutex.Lock()
	defer c.cmdMutex.Unlock()
	if c.conn == nil {
		return nil, wave.ErrNotConnected
	}

	if err := c.sendLocked(command); err != nil {
		return nil, err
	}

	var lines [][]byte
	for {
		line, err := c.readLineLocked(c.cfg.readTimeout)
		if err != nil {
			if errors.Is(err, errReadTimeout) {
				break
			}
			return nil, err
		}
		lines = append(lines, line)
	}

	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: could not get %s", wave.ErrProtocol, name)
	}

	return wave.LinesToMap(lines), nil
}

// GetInfo fetches the device information.
func (c *Conn) GetInfo() (*Info, error) {
	fields, err := c.requestKVBlock("info", "get_info")
	if err != nil {
		return nil, err
	}

	adcToVolts := make([]float64, 0, len(Ranges))
	for _, tok := range strings.Fields(fields["adc2uv"]) {
		uv, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid adc2uv value %q", wave.ErrProtocol, tok)
		}
		adcToVolts = append(adcToVolts, uv/1e6)
	}

	return &Info{
		FirmwareVersion: fields["fw_version"],
		FPGAVersion:     fields["fpga_version"],
		ChannelCount:    wave.AsInt(fields["channel_count"], 0),
		RangeCount:      wave.AsInt(fields["range_count"], 0),
		MaxSampleRate:   wave.AsFloat(fields["max_sample_rate"], 0),
		ADCToVolts:      adcToVolts,
	}, nil
}

// GetStatus fetches the current device status.
func (c *Conn) GetStatus() (*Status, error) {
	fields, err := c.requestKVBlock("status", "get_status")
	if err != nil {
		return nil, err
	}

	return &Status{
		Temperature: wave.AsFloat(fields["temp"], 0),
		BufferSize:  wave.AsInt(fields["buffer_size"], 0),
	}, nil
}

// GetSetup fetches the acquisition setup of the given channel.
func (c *Conn) GetSetup(channel int) (*Setup, error) {
	if err := c.checkChannel(channel, false); err != nil {
		return nil, err
	}

	fields, err := c.requestKVBlock("setup", fmt.Sprintf("get_setup @%d", channel))
	if err != nil {
		return nil, err
	}

	rangeIndex := wave.AsInt(fields["adc_range"], 0)
	if rangeIndex < 0 || rangeIndex >= len(Ranges) {
		rangeIndex = 0
	}
	highpass, lowpass, order := wave.ParseFilter(fields["filter"])

	return &Setup{
		ADCRangeVolts:         Ranges[rangeIndex],
		ADCToVolts:            wave.AsFloat(fields["adc2uv"], 0) / 1e6,
		FilterHighpassHz:      highpass,
		FilterLowpassHz:       lowpass,
		FilterOrder:           order,
		Enabled:               wave.AsInt(fields["enabled"], 0) == 1,
		ContinuousMode:        wave.AsInt(fields["cont"], 0) == 1,
		ThresholdVolts:        wave.AsFloat(fields["thr"], 0) / 1e6,
		DDTSeconds:            wave.AsFloat(fields["ddt"], 0) / 1e6,
		StatusIntervalSeconds: wave.AsFloat(fields["status_interval"], 0) / 1e3,
		TREnabled:             wave.AsInt(fields["tr_enabled"], 0) == 1,
		TRDecimation:          wave.AsInt(fields["tr_decimation"], 1),
		TRPretriggerSamples:   wave.AsInt(fields["tr_pre_trig"], 0),
		TRPostdurationSamples: wave.AsInt(fields["tr_post_dur"], 0),
	}, nil
}

// checkChannel validates a channel selector. Channel 0 means "all channels"
// and is only accepted when allowAll is set.
func (c *Conn) checkChannel(channel int, allowAll bool) error {
	if channel == 0 && allowAll {
		return nil
	}
	if channel >= 1 && channel <= ChannelCount {
		return nil
	}

	return fmt.Errorf("%w: %d (valid: 1-%d%s)",
		wave.ErrInvalidChannel, channel, ChannelCount, allAllowedHint(allowAll))
}

func allAllowedHint(allowAll bool) string {
	if allowAll {
		return ", 0 for all channels"
	}
	return ""
}

// channelStr is used for log messages addressing a channel selector.
func channelStr(channel int) string {
	if channel == 0 {
		return "all channels"
	}
	return fmt.Sprintf("channel %d", channel)
}

// readExactLocked reads exactly len(buf) bytes of binary payload. A short
// read is a framing corruption, not a partial result.
func (c *Conn) readExactLocked(buf []byte) error {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.payloadTimeout)); err != nil {
		return fmt.Errorf("condwave: set read deadline: %w", err)
	}

	remaining := buf
	for len(remaining) > 0 {
		n, err := c.reader.Read(remaining)
		remaining = remaining[n:]
		if err != nil {
			return fmt.Errorf("%w: short binary read, %d bytes missing: %v",
				wave.ErrSampleCountMismatch, len(remaining), err)
		}
	}

	return nil
}

// trimLine strips the trailing line separator.
func trimLine(line []byte) []byte {
	return bytes.TrimRight(line, "\r\n")
}
