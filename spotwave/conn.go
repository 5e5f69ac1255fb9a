package spotwave

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/vallen-systems/go-waveline/logger"
	"github.com/vallen-systems/go-waveline/wave"
)

const (
	// Clock is the internal clock of the device in Hz. It is also the
	// maximum sampling rate.
	Clock = 2_000_000

	// VendorID is the USB vendor id of Vallen Systeme GmbH.
	VendorID = 0x2291
	// ProductID is the USB product id of the spotWave device.
	ProductID = 0x0110

	defaultBaudRate = 115200

	// lowercase hex, dotted
	minFirmwareVersion = "00.21"
)

// Port is the serial transport the driver talks through. Satisfied by
// go.bug.st/serial.Port; tests inject their own implementation.
//
// Read must honor the timeout set via SetReadTimeout by returning zero bytes
// without an error.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	ResetOutputBuffer() error
}

// Conn represents a connection to a spotWave device.
//
// All command methods are safe for concurrent use; command/response round
// trips on the serial port are serialized internally.
type Conn struct {
	cfg    *ConnectionConfig
	logger logger.Logger

	cmdMutex sync.Mutex // serializes serial round trips
	port     Port
	reader   *lineReader

	stateMgr *wave.AcqStateMgr
	taskMgr  *wave.TaskManager

	// per-device calibration, fixed after Connect
	adcToVolts float64
	adcToEU    float64

	metrics AcquisitionMetrics
}

// Info is the immutable device information snapshot fetched at connect time.
type Info struct {
	// HardwareID is the unique device identifier.
	HardwareID string
	// FirmwareVersion is the firmware version string, dotted hexadecimal.
	FirmwareVersion string
	// InputRangeDecibel is the input range in dBAE.
	InputRangeDecibel int
}

// Status is a transient device status snapshot; it is re-fetched on every
// GetStatus call and never cached.
type Status struct {
	// Temperature is the device temperature in °C.
	Temperature int
	// AcqEnabled reports whether acquisition is active.
	AcqEnabled bool
	// LogEnabled reports whether logging is active.
	LogEnabled bool
	// LogDataUsage is the log buffer usage in percent.
	LogDataUsage int
	// DateTime is the device clock reading.
	DateTime time.Time
}

// Setup mirrors the acquisition configuration of the device.
type Setup struct {
	// AcqEnabled reports whether acquisition is enabled.
	AcqEnabled bool
	// ContinuousMode reports whether continuous mode is enabled.
	ContinuousMode bool
	// LogEnabled reports whether logging mode is enabled.
	LogEnabled bool
	// ADCToVolts is the conversion factor from ADC values to volts.
	ADCToVolts float64
	// ThresholdVolts is the threshold for hit-based acquisition in volts.
	ThresholdVolts float64
	// DDTSeconds is the duration discrimination time in seconds.
	DDTSeconds float64
	// StatusIntervalSeconds is the status interval in seconds.
	StatusIntervalSeconds float64
	// FilterHighpassHz is the highpass frequency in Hz, nil if disabled.
	FilterHighpassHz *float64
	// FilterLowpassHz is the lowpass frequency in Hz, nil if disabled.
	FilterLowpassHz *float64
	// FilterOrder is the filter order.
	FilterOrder int
	// TREnabled reports whether transient data recording is enabled.
	TREnabled bool
	// TRDecimation is the decimation factor for transient data.
	TRDecimation int
	// TRPretriggerSamples is the number of pre-trigger samples.
	TRPretriggerSamples int
	// TRPostdurationSamples is the number of post-duration samples.
	TRPostdurationSamples int
	// CCTSeconds is the coupling check transmitter interval in seconds.
	CCTSeconds float64
}

// Open opens the serial port with the given name and returns a Conn for it.
// The device session is not initialized; call Connect. Use Discover to list
// ports with attached spotWave devices.
func Open(portName string, opts ...ConnOption) (*Conn, error) {
	cfg, err := NewConnectionConfig(opts...)
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{BaudRate: cfg.baudRate, DataBits: 8}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("spotwave: open %s: %w", portName, err)
	}

	return newConn(port, cfg)
}

// NewConn creates a Conn on an already opened port. The device session is not
// initialized; call Connect.
func NewConn(port Port, opts ...ConnOption) (*Conn, error) {
	cfg, err := NewConnectionConfig(opts...)
	if err != nil {
		return nil, err
	}

	return newConn(port, cfg)
}

func newConn(port Port, cfg *ConnectionConfig) (*Conn, error) {
	if port == nil {
		return nil, errors.New("spotwave: port is nil")
	}

	return &Conn{
		cfg:      cfg,
		logger:   cfg.logger,
		port:     port,
		reader:   newLineReader(port),
		stateMgr: wave.NewAcqStateMgr(cfg.logger),
	}, nil
}

// Connected reports whether the device session is initialized.
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

// Connect initializes the device session on the open port.
//
// It validates the firmware version (failing with wave.ErrFirmwareTooOld if
// the device is too old), stops a possibly running acquisition left over from
// a previous session, and reads the device calibration factor from the setup.
// No-op if already connected.
func (c *Conn) Connect(ctx context.Context) error {
	if c.Connected() {
		return nil
	}

	c.logger.Info("initialize device session")
	c.taskMgr = wave.NewTaskManager(ctx, c.logger)
	_ = c.stateMgr.ToIdle()

	info, err := c.GetInfo()
	if err != nil {
		c.stateMgr.ToDisconnected()
		return err
	}

	if err := wave.CheckFirmware(info.FirmwareVersion, minFirmwareVersion, 16); err != nil {
		c.stateMgr.ToDisconnected()
		return err
	}

	// the device may still be acquiring from a previous session
	if err := c.command("set_acq enabled 0"); err != nil {
		c.stateMgr.ToDisconnected()
		return err
	}

	setup, err := c.GetSetup()
	if err != nil {
		c.stateMgr.ToDisconnected()
		return err
	}
	c.adcToVolts = setup.ADCToVolts
	c.adcToEU = wave.ADCToEUFactor(setup.ADCToVolts, Clock)
	c.logger.Debug("ADC to volts factor", "factor", c.adcToVolts)

	return nil
}

// Close closes the connection and the underlying port. It stops a running
// acquisition and terminates the polling loop first. No-op if never
// connected, except that the port is still closed.
func (c *Conn) Close() error {
	if c.Connected() {
		if c.stateMgr.IsAcquiring() {
			if err := c.StopAcquisition(); err != nil {
				c.logger.Error("failed to stop acquisition on close", "error", err)
			}
		}

		c.logger.Info("close connection")
		c.stateMgr.ToDisconnected()
		if c.taskMgr != nil {
			c.taskMgr.Stop()
			c.taskMgr.Wait()
		}
	}

	c.cmdMutex.Lock()
	defer c.cmdMutex.Unlock()
	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port = nil

	return err
}

// sendLocked writes one newline-terminated command. Callers must hold
// cmdMutex and have verified the port.
func (c *Conn) sendLocked(command string) error {
	c.logger.Debug("send command", "command", command)
	c.metrics.incCommandSendCount()

	if _, err := c.port.Write(append([]byte(command), '\n')); err != nil {
		return fmt.Errorf("spotwave: send %q: %w", command, err)
	}

	return nil
}

// command sends a fire-and-forget command.
func (c *Conn) command(command string) error {
	c.cmdMutex.Lock()
	defer c.cmdMutex.Unlock()
	if c.port == nil {
		return wave.ErrNotConnected
	}

	return c.sendLocked(command)
}

// requestKVBlock sends a command and reads its key=value response block,
// terminated by the per-read timeout. An empty block yields wave.ErrProtocol
// ("could not get <name>").
func (c *Conn) requestKVBlock(name, command string) (map[string]string, error) {
	c.cmdMutex.Lock()
	defer c.cmdMutex.Unlock()
	if c.port == nil {
		return nil, wave.ErrNotConnected
	}

	if err := c.sendLocked(command); err != nil {
		return nil, err
	}

	var lines [][]byte
	for {
		line, err := c.reader.ReadLine(c.cfg.readTimeout)
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

	return &Info{
		HardwareID:        fields["hw_id"],
		FirmwareVersion:   fields["fw_version"],
		InputRangeDecibel: wave.AsInt(fields["input_range"], 0),
	}, nil
}

// deviceTimeLayout matches the device clock format, e.g.
// "2021-05-03 09:14:22.183".
const deviceTimeLayout = "2006-01-02 15:04:05.999999"

// GetStatus fetches the current device status. An unparseable device clock
// reading is reported as the zero time, never as an error.
func (c *Conn) GetStatus() (*Status, error) {
	fields, err := c.requestKVBlock("status", "get_status")
	if err != nil {
		return nil, err
	}

	deviceTime, err := time.Parse(deviceTimeLayout, fields["date"])
	if err != nil {
		c.logger.Warn("unparseable device datetime", "date", fields["date"])
	}

	return &Status{
		Temperature:  wave.AsInt(fields["temp"], 0),
		AcqEnabled:   wave.AsInt(fields["acq_enabled"], 0) == 1,
		LogEnabled:   wave.AsInt(fields["log_enabled"], 0) == 1,
		LogDataUsage: wave.AsInt(fields["log_data_usage"], 0),
		DateTime:     deviceTime,
	}, nil
}

// GetSetup fetches the acquisition setup.
func (c *Conn) GetSetup() (*Setup, error) {
	fields, err := c.requestKVBlock("setup", "get_setup")
	if err != nil {
		return nil, err
	}

	highpass, lowpass, order := wave.ParseFilter(fields["filter"])

	return &Setup{
		AcqEnabled:            wave.AsInt(fields["acq_enabled"], 0) == 1,
		ContinuousMode:        wave.AsInt(fields["cont"], 0) == 1,
		LogEnabled:            wave.AsInt(fields["log_enabled"], 0) == 1,
		ADCToVolts:            wave.AsFloat(fields["adc2uv"], 0) / 1e6,
		ThresholdVolts:        wave.AsFloat(fields["thr"], 0) / 1e6,
		DDTSeconds:            wave.AsFloat(fields["ddt"], 0) / 1e6,
		StatusIntervalSeconds: wave.AsFloat(fields["status_interval"], 0) / 1e3,
		FilterHighpassHz:      highpass,
		FilterLowpassHz:       lowpass,
		FilterOrder:           order,
		TREnabled:             wave.AsInt(fields["tr_enabled"], 0) == 1,
		TRDecimation:          wave.AsInt(fields["tr_decimation"], 1),
		TRPretriggerSamples:   wave.AsInt(fields["tr_pre_trig"], 0),
		TRPostdurationSamples: wave.AsInt(fields["tr_post_dur"], 0),
		CCTSeconds:            wave.AsFloat(fields["cct"], 0),
	}, nil
}

// scaling returns the scaling parameters of the single input channel. The
// channel argument exists to satisfy wave.ScalingFunc.
func (c *Conn) scaling(_ int) wave.Scaling {
	return wave.Scaling{
		TimeBase:   Clock,
		ADCToVolts: c.adcToVolts,
		ADCToEU:    c.adcToEU,
	}
}
