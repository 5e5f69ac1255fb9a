package spotwave

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vallen-systems/go-waveline/wave"
)

func TestSetters_WireFormat(t *testing.T) {
	port := newMockPort()
	conn := connectTestConn(t, port)

	highpass := 50e3
	lowpass := 300e3

	tests := []struct {
		name     string
		call     func() error
		expected string
	}{
		{
			name:     "SetContinuousMode",
			call:     func() error { return conn.SetContinuousMode(true) },
			expected: "set_acq cont 1",
		},
		{
			name:     "SetDDT",
			call:     func() error { return conn.SetDDT(400) },
			expected: "set_acq ddt 400",
		},
		{
			name:     "SetStatusInterval",
			call:     func() error { return conn.SetStatusInterval(2 * time.Second) },
			expected: "set_acq status_interval 2000",
		},
		{
			name:     "SetTREnabled",
			call:     func() error { return conn.SetTREnabled(true) },
			expected: "set_acq tr_enabled 1",
		},
		{
			name:     "SetTRDecimation",
			call:     func() error { return conn.SetTRDecimation(4) },
			expected: "set_acq tr_decimation 4",
		},
		{
			name:     "SetTRPretrigger",
			call:     func() error { return conn.SetTRPretrigger(200) },
			expected: "set_acq tr_pre_trig 200",
		},
		{
			name:     "SetTRPostduration",
			call:     func() error { return conn.SetTRPostduration(0) },
			expected: "set_acq tr_post_dur 0",
		},
		{
			name:     "SetThreshold",
			call:     func() error { return conn.SetThreshold(3162.5) },
			expected: "set_acq thr 3162.5",
		},
		{
			name:     "SetFilter",
			call:     func() error { return conn.SetFilter(&highpass, &lowpass, 4) },
			expected: "set_filter 50 300 4",
		},
		{
			name:     "SetFilterDefaultsToNyquist",
			call:     func() error { return conn.SetFilter(nil, nil, 4) },
			expected: "set_filter 0 1000 4",
		},
		{
			name:     "SetCCT",
			call:     func() error { return conn.SetCCT(500*time.Millisecond, false) },
			expected: "set_cct 0.5",
		},
		{
			name:     "SetCCTSync",
			call:     func() error { return conn.SetCCT(500*time.Millisecond, true) },
			expected: "set_cct -0.5",
		},
		{
			name:     "SetDateTime",
			call:     func() error { return conn.SetDateTime(time.Date(2024, 6, 13, 9, 14, 22, 0, time.UTC)) },
			expected: "set_datetime 2024-06-13 09:14:22",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.call())
			assert.Contains(t, port.sentCommands(), tt.expected)
		})
	}
}

func TestSetTRDecimation_Invalid(t *testing.T) {
	port := newMockPort()
	conn := connectTestConn(t, port)

	assert.ErrorIs(t, conn.SetTRDecimation(0), wave.ErrInvalidDecimation)
}

func TestStartStopAcquisition(t *testing.T) {
	port := newMockPort()
	conn := connectTestConn(t, port)

	// one stop was already sent during connect
	require.Equal(t, 1, port.countCommands("set_acq enabled 0"))

	require.NoError(t, conn.StartAcquisition())
	assert.Equal(t, wave.AcquiringState, conn.State())

	// repeated start is a no-op
	require.NoError(t, conn.StartAcquisition())
	assert.Equal(t, 1, port.countCommands("set_acq enabled 1"))

	require.NoError(t, conn.StopAcquisition())
	assert.Equal(t, wave.IdleState, conn.State())

	// repeated stop is a no-op
	require.NoError(t, conn.StopAcquisition())
	assert.Equal(t, 2, port.countCommands("set_acq enabled 0"))
}

func TestClearBuffer(t *testing.T) {
	port := newMockPort()
	conn := connectTestConn(t, port)

	port.mu.Lock()
	port.pending.WriteString("stale response\n")
	port.mu.Unlock()

	require.NoError(t, conn.ClearBuffer())

	port.mu.Lock()
	defer port.mu.Unlock()
	assert.Zero(t, port.pending.Len())
	assert.Equal(t, 2, port.resets)
}
