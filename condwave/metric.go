package condwave

import "sync/atomic"

// AcquisitionMetrics holds counters of the connection's wire activity. All
// fields are updated atomically and safe to read concurrently.
type AcquisitionMetrics struct {
	// CommandSendCount is the number of commands sent on the control socket.
	CommandSendCount atomic.Uint64
	// AERecordRecvCount is the number of AE records received.
	AERecordRecvCount atomic.Uint64
	// TRRecordRecvCount is the number of transient data records received.
	TRRecordRecvCount atomic.Uint64
	// ParseErrCount is the number of response lines that failed to decode.
	ParseErrCount atomic.Uint64
	// StreamBlockRecvCount is the number of sample blocks received on all
	// stream sockets.
	StreamBlockRecvCount atomic.Uint64
	// StreamByteRecvCount is the number of payload bytes received on all
	// stream sockets.
	StreamByteRecvCount atomic.Uint64
}

func (m *AcquisitionMetrics) incCommandSendCount()     { m.CommandSendCount.Add(1) }
func (m *AcquisitionMetrics) incAERecordCount()        { m.AERecordRecvCount.Add(1) }
func (m *AcquisitionMetrics) incTRRecordCount()        { m.TRRecordRecvCount.Add(1) }
func (m *AcquisitionMetrics) incParseErrCount()        { m.ParseErrCount.Add(1) }
func (m *AcquisitionMetrics) incStreamBlockRecvCount() { m.StreamBlockRecvCount.Add(1) }

func (m *AcquisitionMetrics) addStreamByteRecvCount(n uint64) { m.StreamByteRecvCount.Add(n) }
