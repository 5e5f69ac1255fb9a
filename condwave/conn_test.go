package condwave

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vallen-systems/go-waveline/wave"
)

const testFirmwareVersion = "2.13"

// fakeDevice emulates the TCP control protocol of a device: newline-terminated
// commands in, scripted responses out. Key=value blocks are terminated by
// silence, so the fake simply stops writing.
type fakeDevice struct {
	t        *testing.T
	listener net.Listener

	mu       sync.Mutex
	commands []string
	respond  func(cmd string) []byte
}

func newFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	return newFakeDeviceOn(t, listener)
}

func newFakeDeviceOn(t *testing.T, listener net.Listener) *fakeDevice {
	t.Helper()

	d := &fakeDevice{t: t, listener: listener}
	d.respond = d.defaultResponse
	t.Cleanup(func() { _ = listener.Close() })
	go d.serve(listener)

	return d
}

func (d *fakeDevice) port() int {
	return d.listener.Addr().(*net.TCPAddr).Port
}

func (d *fakeDevice) serve(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		go d.handle(conn)
	}
}

func (d *fakeDevice) handle(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		cmd := scanner.Text()

		d.mu.Lock()
		d.commands = append(d.commands, cmd)
		respond := d.respond
		d.mu.Unlock()

		if response := respond(cmd); len(response) > 0 {
			if _, err := conn.Write(response); err != nil {
				return
			}
		}
	}
}

func (d *fakeDevice) defaultResponse(cmd string) []byte {
	switch {
	case cmd == "get_info":
		return []byte("fw_version = " + testFirmwareVersion + "\n" +
			"fpga_version = 3.1\n" +
			"channel_count = 2\n" +
			"range_count = 2\n" +
			"max_sample_rate = 10000000\n" +
			"adc2uv = 1.5625 156.25\n")
	case cmd == "get_status":
		return []byte("temp = 24\nbuffer_size = 112014\n")
	case strings.HasPrefix(cmd, "get_setup"):
		return []byte("adc_range = 0\n" +
			"adc2uv = 1.5625\n" +
			"filter = 10.5-350 kHz, order 4\n" +
			"enabled = 1\n" +
			"cont = 0\n" +
			"thr = 100.0\n" +
			"ddt = 250\n" +
			"status_interval = 1000\n" +
			"tr_enabled = 1\n" +
			"tr_decimation = 1\n" +
			"tr_pre_trig = 100\n" +
			"tr_post_dur = 100\n")
	case cmd == "get_ae_data", cmd == "get_tr_data":
		return []byte("\n")
	default:
		return nil
	}
}

// sentCommands returns a snapshot of all commands received so far.
func (d *fakeDevice) sentCommands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.commands...)
}

func (d *fakeDevice) countCommands(cmd string) int {
	count := 0
	for _, c := range d.sentCommands() {
		if c == cmd {
			count++
		}
	}

	return count
}

// waitForCommand blocks until the device has received the given command.
// Commands without a response are fire-and-forget on the client side, so
// asserting on them right after the call would race the device reader.
func (d *fakeDevice) waitForCommand(t *testing.T, cmd string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return d.countCommands(cmd) > 0
	}, time.Second, 2*time.Millisecond, "command %q not received", cmd)
}

func connectTestConn(t *testing.T, device *fakeDevice) *Conn {
	t.Helper()

	cfg, err := NewConnectionConfig("127.0.0.1",
		WithControlPort(device.port()),
		WithReadTimeout(20*time.Millisecond),
	)
	require.NoError(t, err)

	conn, err := NewConn(cfg)
	require.NoError(t, err)
	require.NoError(t, conn.Connect(context.Background()))
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func TestConn_Connect(t *testing.T) {
	device := newFakeDevice(t)
	conn := connectTestConn(t, device)

	assert.True(t, conn.Connected())
	assert.Equal(t, wave.IdleState, conn.State())

	// default settings are applied to all channels at connect time
	device.waitForCommand(t, "set_adc_range 0 @0")
	device.waitForCommand(t, "set_acq tr_decimation 1 @0")
}

func TestConn_ConnectFirmwareTooOld(t *testing.T) {
	device := newFakeDevice(t)
	device.respond = func(cmd string) []byte {
		if cmd == "get_info" {
			return []byte("fw_version = 2.1\nadc2uv = 1.5625 156.25\n")
		}
		return device.defaultResponse(cmd)
	}

	cfg, err := NewConnectionConfig("127.0.0.1",
		WithControlPort(device.port()),
		WithReadTimeout(20*time.Millisecond),
	)
	require.NoError(t, err)
	conn, err := NewConn(cfg)
	require.NoError(t, err)

	err = conn.Connect(context.Background())
	assert.ErrorIs(t, err, wave.ErrFirmwareTooOld)
	assert.False(t, conn.Connected())
}

func TestConn_GetInfo(t *testing.T) {
	device := newFakeDevice(t)
	conn := connectTestConn(t, device)

	info, err := conn.GetInfo()
	require.NoError(t, err)

	assert.Equal(t, testFirmwareVersion, info.FirmwareVersion)
	assert.Equal(t, "3.1", info.FPGAVersion)
	assert.Equal(t, 2, info.ChannelCount)
	assert.Equal(t, 2, info.RangeCount)
	assert.InDelta(t, 1e7, info.MaxSampleRate, 1e-6)
	require.Len(t, info.ADCToVolts, 2)
	assert.InDelta(t, 1.5625e-06, info.ADCToVolts[0], 1e-12)
	assert.InDelta(t, 1.5625e-04, info.ADCToVolts[1], 1e-12)
}

func TestConn_GetStatus(t *testing.T) {
	device := newFakeDevice(t)
	conn := connectTestConn(t, device)

	status, err := conn.GetStatus()
	require.NoError(t, err)

	assert.InDelta(t, 24, status.Temperature, 1e-9)
	assert.Equal(t, 112014, status.BufferSize)
}

func TestConn_GetSetup(t *testing.T) {
	device := newFakeDevice(t)
	conn := connectTestConn(t, device)

	setup, err := conn.GetSetup(1)
	require.NoError(t, err)

	assert.InDelta(t, 0.05, setup.ADCRangeVolts, 1e-12)
	assert.InDelta(t, 1.5625e-06, setup.ADCToVolts, 1e-12)
	require.NotNil(t, setup.FilterHighpassHz)
	assert.InDelta(t, 10500, *setup.FilterHighpassHz, 1e-9)
	require.NotNil(t, setup.FilterLowpassHz)
	assert.InDelta(t, 350000, *setup.FilterLowpassHz, 1e-9)
	assert.Equal(t, 4, setup.FilterOrder)
	assert.True(t, setup.Enabled)
	assert.False(t, setup.ContinuousMode)
	assert.InDelta(t, 100e-6, setup.ThresholdVolts, 1e-12)
	assert.InDelta(t, 250e-6, setup.DDTSeconds, 1e-12)
	assert.InDelta(t, 1.0, setup.StatusIntervalSeconds, 1e-12)
	assert.True(t, setup.TREnabled)
	assert.Equal(t, 1, setup.TRDecimation)
	assert.Equal(t, 100, setup.TRPretriggerSamples)
	assert.Equal(t, 100, setup.TRPostdurationSamples)
}

func TestConn_GetSetupInvalidChannel(t *testing.T) {
	device := newFakeDevice(t)
	conn := connectTestConn(t, device)

	// channel 0 is a selector for commands, not a readable channel
	_, err := conn.GetSetup(0)
	assert.ErrorIs(t, err, wave.ErrInvalidChannel)

	_, err = conn.GetSetup(3)
	assert.ErrorIs(t, err, wave.ErrInvalidChannel)
}

func TestConn_EmptyResponse(t *testing.T) {
	device := newFakeDevice(t)
	conn := connectTestConn(t, device)

	device.mu.Lock()
	device.respond = func(string) []byte { return nil }
	device.mu.Unlock()

	_, err := conn.GetStatus()
	assert.ErrorIs(t, err, wave.ErrProtocol)
}

func TestConn_NotConnected(t *testing.T) {
	cfg, err := NewConnectionConfig("127.0.0.1")
	require.NoError(t, err)
	conn, err := NewConn(cfg)
	require.NoError(t, err)

	_, err = conn.GetStatus()
	assert.ErrorIs(t, err, wave.ErrNotConnected)
	assert.ErrorIs(t, conn.StartAcquisition(), wave.ErrNotConnected)
	assert.NoError(t, conn.Close())
}

func TestConn_ConnectRefused(t *testing.T) {
	cfg, err := NewConnectionConfig("127.0.0.1",
		WithControlPort(1), // nothing listens there
		WithDialTimeout(100*time.Millisecond),
	)
	require.NoError(t, err)
	conn, err := NewConn(cfg)
	require.NoError(t, err)

	assert.Error(t, conn.Connect(context.Background()))
	assert.False(t, conn.Connected())
}

func TestNewConn_NilConfig(t *testing.T) {
	_, err := NewConn(nil)
	assert.ErrorIs(t, err, ErrConnConfigNil)
}

func TestNewConnectionConfig_Validation(t *testing.T) {
	_, err := NewConnectionConfig("")
	assert.Error(t, err)

	_, err = NewConnectionConfig("127.0.0.1", WithReadTimeout(time.Millisecond))
	assert.Error(t, err)

	_, err = NewConnectionConfig("127.0.0.1", WithControlPort(0))
	assert.Error(t, err)

	_, err = NewConnectionConfig("127.0.0.1", WithDialTimeout(time.Minute))
	assert.Error(t, err)
}

func TestChannelStr(t *testing.T) {
	assert.Equal(t, "all channels", channelStr(0))
	assert.Equal(t, fmt.Sprintf("channel %d", 1), channelStr(1))
}
