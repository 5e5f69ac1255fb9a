package spotwave

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vallen-systems/go-waveline/logger"
	"github.com/vallen-systems/go-waveline/wave"
)

func TestGetAEData(t *testing.T) {
	port := newMockPort()
	conn := connectTestConn(t, port)

	port.setResponse(func(cmd string) []byte {
		if cmd == "get_ae_data" {
			return []byte("4\n" +
				"H T=3044759 A=3557 R=24 D=819 C=31 E=74571 TRAI=1 flags=0\n" +
				"S T=4000000 A=0 R=0 D=0 C=0 E=38788618 TRAI=0 flags=0\n" +
				"R\n" +
				"? bogus line\n")
		}
		return port.defaultResponse(cmd)
	})

	records, err := conn.GetAEData()
	require.NoError(t, err)
	require.Len(t, records, 2)

	hit := records[0]
	assert.Equal(t, wave.AETypeHit, hit.Type)
	assert.InDelta(t, 3044759/float64(Clock), hit.Time, 1e-12)
	assert.InDelta(t, 3557*1.74082e-06, hit.Amplitude, 1e-12)
	assert.InDelta(t, 24/float64(Clock), hit.RiseTime, 1e-12)
	assert.Equal(t, 31, hit.Counts)
	assert.Equal(t, 1, hit.TRAI)

	assert.Equal(t, wave.AETypeStatus, records[1].Type)

	// the marker line is skipped silently, the bogus line is counted
	assert.Equal(t, uint64(1), conn.GetMetrics().ParseErrCount.Load())
	assert.Equal(t, uint64(2), conn.GetMetrics().AERecordRecvCount.Load())
}

func TestGetAEData_Empty(t *testing.T) {
	port := newMockPort()
	conn := connectTestConn(t, port)

	records, err := conn.GetAEData()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestGetAEData_Truncated(t *testing.T) {
	port := newMockPort()
	conn := connectTestConn(t, port)

	port.setResponse(func(cmd string) []byte {
		if cmd == "get_ae_data" {
			return []byte("2\nH T=1 A=1 R=0 D=0 C=0 E=0 TRAI=0 flags=0\n")
		}
		return port.defaultResponse(cmd)
	})

	_, err := conn.GetAEData()
	assert.ErrorIs(t, err, wave.ErrProtocol)
}

func trPayload(samples []int16) []byte {
	payload := make([]byte, 2*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint16(payload[2*i:], uint16(v))
	}
	return payload
}

func TestGetTRData(t *testing.T) {
	port := newMockPort()
	conn := connectTestConn(t, port)

	samples := []int16{100, -100, 0, 32767}
	port.setResponse(func(cmd string) []byte {
		if cmd == "get_tr_data b" {
			response := []byte("TRAI=1 T=43686000 NS=4\n")
			response = append(response, trPayload(samples)...)
			response = append(response, []byte("TRAI=2 T=43686100 NS=2\n")...)
			response = append(response, trPayload(samples[:2])...)
			response = append(response, []byte("TRAI=0 T=0 NS=0\n")...)
			return response
		}
		return port.defaultResponse(cmd)
	})

	records, err := conn.GetTRData(false)
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, 1, first.TRAI)
	assert.InDelta(t, 43686000/float64(Clock), first.Time, 1e-9)
	assert.Equal(t, 4, first.Samples)
	require.Len(t, first.Data, 4)
	assert.InDelta(t, 100*1.74082e-06, float64(first.Data[0]), 1e-9)

	assert.Equal(t, 2, records[1].TRAI)
	assert.Equal(t, 2, records[1].Samples)
}

func TestGetTRData_SampleCountMismatch(t *testing.T) {
	port := newMockPort()
	conn := connectTestConn(t, port)

	port.setResponse(func(cmd string) []byte {
		if cmd == "get_tr_data b" {
			// announces 100 samples but sends only 4 bytes
			return []byte("TRAI=1 T=0 NS=100\n\x01\x02\x03\x04")
		}
		return port.defaultResponse(cmd)
	})

	_, err := conn.GetTRData(false)
	assert.ErrorIs(t, err, wave.ErrSampleCountMismatch)
}

func TestGetData(t *testing.T) {
	port := newMockPort()
	conn := connectTestConn(t, port)

	samples := []int16{1000, -1000, 0, 5}
	port.setResponse(func(cmd string) []byte {
		if cmd == "get_data b 4" {
			return trPayload(samples)
		}
		return port.defaultResponse(cmd)
	})

	t.Run("Scaled", func(t *testing.T) {
		data, err := conn.GetData(4)
		require.NoError(t, err)
		require.Len(t, data, 4)
		assert.InDelta(t, 1000*1.74082e-06, float64(data[0]), 1e-9)
	})

	t.Run("Raw", func(t *testing.T) {
		data, err := conn.GetDataRaw(4)
		require.NoError(t, err)
		assert.Equal(t, samples, data)
	})

	t.Run("InvalidSampleCount", func(t *testing.T) {
		_, err := conn.GetData(0)
		assert.Error(t, err)
	})
}

func TestAcquire_StopsExactlyOnce(t *testing.T) {
	port := newMockPort()
	conn := connectTestConn(t, port)

	ctx, cancel := context.WithCancel(context.Background())
	records, err := conn.Acquire(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, wave.AcquiringState, conn.State())

	// let the poll loop run a few rounds
	time.Sleep(50 * time.Millisecond)
	cancel()

	for range records { //nolint:revive
	}

	assert.Equal(t, wave.IdleState, conn.State())
	// one stop from connect, exactly one from the finished acquisition
	assert.Equal(t, 2, port.countCommands("set_acq enabled 0"))

	// Close after a finished acquisition must not stop again
	require.NoError(t, conn.Close())
	assert.Equal(t, 2, port.countCommands("set_acq enabled 0"))
}

func TestAcquire_DeliversRecords(t *testing.T) {
	port := newMockPort()
	conn := connectTestConn(t, port)

	port.setResponse(func(cmd string) []byte {
		if cmd == "get_ae_data" {
			return []byte("1\nH T=1000 A=100 R=1 D=2 C=3 E=4 TRAI=0 flags=0\n")
		}
		return port.defaultResponse(cmd)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	records, err := conn.Acquire(ctx, false)
	require.NoError(t, err)

	select {
	case record := <-records:
		require.NotNil(t, record)
		assert.Equal(t, wave.KindAE, record.Kind())
	case <-time.After(2 * time.Second):
		t.Fatal("no record received")
	}
}

func TestAcquire_SlowConsumerLosesNothing(t *testing.T) {
	port := newMockPort()
	conn := connectTestConn(t, port)

	const total = 1200 // more than the record channel buffers

	var response bytes.Buffer
	fmt.Fprintf(&response, "%d\n", total)
	for i := 0; i < total; i++ {
		fmt.Fprintf(&response, "H T=%d A=1 R=0 D=0 C=0 E=0 TRAI=0 flags=0\n", i)
	}

	served := false
	port.setResponse(func(cmd string) []byte {
		if cmd == "get_ae_data" {
			if !served {
				served = true
				return response.Bytes()
			}
			return []byte("0\n")
		}
		return port.defaultResponse(cmd)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	records, err := conn.Acquire(ctx, false)
	require.NoError(t, err)

	// let the poll loop fill the channel buffer and block on delivery
	time.Sleep(200 * time.Millisecond)

	received := make([]*wave.AERecord, 0, total)
	for len(received) < total {
		select {
		case record := <-records:
			received = append(received, record.(*wave.AERecord))
		case <-time.After(2 * time.Second):
			t.Fatalf("received only %d of %d records", len(received), total)
		}
	}

	// complete and in order
	for i, record := range received {
		require.InDelta(t, float64(i)/Clock, record.Time, 1e-12)
	}
}

func TestAcquire_CloseStopsQuietly(t *testing.T) {
	port := newMockPort()

	mockLogger := logger.NewMockLogger()
	mockLogger.On("Debug", mock.Anything, mock.Anything)
	mockLogger.On("Info", mock.Anything, mock.Anything)
	mockLogger.On("Warn", mock.Anything, mock.Anything)
	mockLogger.On("Error", mock.Anything, mock.Anything)

	conn, err := NewConn(port, WithReadTimeout(10*time.Millisecond), WithLogger(mockLogger))
	require.NoError(t, err)
	require.NoError(t, conn.Connect(context.Background()))

	records, err := conn.Acquire(context.Background(), false)
	require.NoError(t, err)
	go func() {
		for range records { //nolint:revive
		}
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, conn.Close())

	// one disable from connect, one from Close, none from the task cleanup
	assert.Equal(t, 2, port.countCommands("set_acq enabled 0"))

	// a graceful shutdown must not report errors
	mockLogger.AssertNotCalled(t, "Error", mock.Anything, mock.Anything)
}
