package spotwave

import "sync/atomic"

// AcquisitionMetrics holds counters of the connection's wire activity. All
// fields are updated atomically and safe to read concurrently.
type AcquisitionMetrics struct {
	// CommandSendCount is the number of commands sent on the serial port.
	CommandSendCount atomic.Uint64
	// AERecordRecvCount is the number of AE records received.
	AERecordRecvCount atomic.Uint64
	// TRRecordRecvCount is the number of transient data records received.
	TRRecordRecvCount atomic.Uint64
	// ParseErrCount is the number of response lines that failed to decode.
	ParseErrCount atomic.Uint64
}

func (m *AcquisitionMetrics) incCommandSendCount() { m.CommandSendCount.Add(1) }
func (m *AcquisitionMetrics) incAERecordCount()    { m.AERecordRecvCount.Add(1) }
func (m *AcquisitionMetrics) incTRRecordCount()    { m.TRRecordRecvCount.Add(1) }
func (m *AcquisitionMetrics) incParseErrCount()    { m.ParseErrCount.Add(1) }
