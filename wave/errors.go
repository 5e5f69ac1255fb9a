package wave

import "errors"

var (
	// ErrNotConnected indicates that an operation was attempted while the
	// device connection is not open. Recoverable by reconnecting.
	ErrNotConnected = errors.New("wave: device not connected")

	// ErrProtocol indicates that an expected response was absent or malformed
	// beyond repair, e.g. an empty get_info/get_status/get_setup block.
	// Fatal to the current operation.
	ErrProtocol = errors.New("wave: protocol error")

	// ErrUnknownRecordType indicates an AE data line with an unknown record
	// type tag. Callers log and skip such lines; they are never fatal.
	ErrUnknownRecordType = errors.New("wave: unknown AE record type")

	// ErrSampleCountMismatch indicates that the binary payload of a transient
	// record does not contain the number of samples declared in its header.
	// This is a framing corruption and is always fatal; data is never
	// silently truncated or padded.
	ErrSampleCountMismatch = errors.New("wave: TR sample count mismatch")

	// ErrFirmwareTooOld indicates that the device firmware is older than the
	// minimum version required by the driver. Fatal at connect time.
	ErrFirmwareTooOld = errors.New("wave: firmware too old, upgrade required")
)

var (
	// ErrInvalidChannel indicates a channel number outside the set of valid
	// channels for the device. Rejected before any bytes are sent.
	ErrInvalidChannel = errors.New("wave: invalid channel number")

	// ErrInvalidRange indicates an input range that the device does not
	// support. Rejected before any bytes are sent.
	ErrInvalidRange = errors.New("wave: invalid input range")

	// ErrInvalidDecimation indicates a decimation factor outside the
	// device-supported bounds. Rejected before any bytes are sent.
	ErrInvalidDecimation = errors.New("wave: invalid decimation factor")

	// ErrInvalidBlockSize indicates a non-positive streaming block size.
	ErrInvalidBlockSize = errors.New("wave: invalid block size")
)

var (
	// ErrInvalidTransition is returned when an attempt is made to transition
	// the acquisition state to an invalid state.
	ErrInvalidTransition = errors.New("wave: invalid state transition")
)
