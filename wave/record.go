package wave

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// RecordKind tags the variants of the Record sum type.
type RecordKind uint8

const (
	// KindAE tags an acoustic-emission record (hit or status line).
	KindAE RecordKind = iota + 1
	// KindTR tags a transient waveform record.
	KindTR
)

// String returns the string representation of the record kind.
func (k RecordKind) String() string {
	switch k {
	case KindAE:
		return "AE"
	case KindTR:
		return "TR"
	default:
		return "unknown"
	}
}

// Record is the tagged variant over AE and TR data records yielded by the
// acquisition loops. Consumers dispatch on Kind instead of inspecting the
// runtime type.
type Record interface {
	Kind() RecordKind
}

// AE record type tags as reported on the wire.
const (
	// AETypeHit marks a hit record.
	AETypeHit = "H"
	// AETypeStatus marks a status record.
	AETypeStatus = "S"
)

// AERecord is one acoustic-emission event or status line.
type AERecord struct {
	// Type is the record type tag, AETypeHit or AETypeStatus.
	Type string
	// Channel is the source channel number (0 on single-channel devices).
	Channel int
	// Time is the record time in seconds.
	Time float64
	// Amplitude is the peak amplitude in volts.
	Amplitude float64
	// RiseTime is the rise time in seconds.
	RiseTime float64
	// Duration is the duration in seconds.
	Duration float64
	// Counts is the number of positive threshold crossings.
	Counts int
	// Energy is the energy (EN 1330-9) in eu (1e-14 V²s).
	Energy float64
	// TRAI is the transient recorder index correlating this record with a
	// TRRecord of the same TRAI. Zero means no associated transient record.
	TRAI int
	// Flags is the hit flags bitmask.
	Flags int
}

func (r *AERecord) Kind() RecordKind { return KindAE }

// TRRecord is one transient waveform block.
type TRRecord struct {
	// Channel is the source channel number (0 on single-channel devices).
	Channel int
	// TRAI is the transient recorder index correlating this record with the
	// AERecord of the same TRAI.
	TRAI int
	// Time is the trigger time in seconds.
	Time float64
	// Samples is the number of samples in the record.
	Samples int
	// Data holds the samples in volts. Nil if Raw is set.
	Data []float32
	// DataRaw holds the unscaled ADC samples. Nil unless Raw is set.
	DataRaw []int16
	// Raw indicates that no volts scaling was applied.
	Raw bool
}

func (r *TRRecord) Kind() RecordKind { return KindTR }

// TRHeader is the decoded text header preceding the binary payload of a
// transient record.
type TRHeader struct {
	Channel int
	TRAI    int
	Ticks   int64
	Samples int
}

// ScalingFunc returns the scaling parameters for the given channel. The
// multi-channel device selects calibration per channel; single-channel
// devices ignore the argument.
type ScalingFunc func(channel int) Scaling

// DecodeAELine decodes one AE data line ("H ..." or "S ..." followed by
// key=value tokens) into an AERecord, using the scaling of the channel named
// in the line.
//
// Marker lines ("R ...") are recognized and skipped; they yield (nil, nil).
// Lines with an unknown type tag yield ErrUnknownRecordType, which callers
// treat as non-fatal (log and skip). Missing numeric fields default to zero.
func DecodeAELine(line []byte, scaling ScalingFunc) (*AERecord, error) {
	line = bytes.TrimRight(line, "\r\n")
	if len(line) == 0 {
		return nil, fmt.Errorf("%w: empty AE data line", ErrProtocol)
	}

	tag := string(line[:1])
	switch tag {
	case AETypeHit, AETypeStatus:
	case "R": // record start marker, no payload
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRecordType, line)
	}

	fields := Fields(line[1:])
	channel := AsInt(fields["Ch"], 0)
	s := scaling(channel)

	return &AERecord{
		Type:      tag,
		Channel:   channel,
		Time:      float64(AsInt(fields["T"], 0)) / s.TimeBase,
		Amplitude: float64(AsInt(fields["A"], 0)) * s.ADCToVolts,
		RiseTime:  float64(AsInt(fields["R"], 0)) / s.TimeBase,
		Duration:  float64(AsInt(fields["D"], 0)) / s.TimeBase,
		Counts:    AsInt(fields["C"], 0),
		Energy:    float64(AsInt(fields["E"], 0)) * s.ADCToEU,
		TRAI:      AsInt(fields["TRAI"], 0),
		Flags:     AsInt(fields["flags"], 0),
	}, nil
}

// DecodeTRHeader decodes a transient record header line
// ("TRAI=<n> Ch=<c> T=<ticks> NS=<samples>"). Missing fields default to zero;
// a TRAI of zero is how the spotWave terminates a get_tr_data response.
func DecodeTRHeader(line []byte) (TRHeader, error) {
	line = bytes.TrimRight(line, "\r\n")
	fields := Fields(line)

	samples := AsInt(fields["NS"], 0)
	if samples < 0 || samples > maxTRSamples {
		return TRHeader{}, fmt.Errorf("%w: implausible sample count in %q", ErrProtocol, line)
	}

	return TRHeader{
		Channel: AsInt(fields["Ch"], 0),
		TRAI:    AsInt(fields["TRAI"], 0),
		Ticks:   int64(AsInt(fields["T"], 0)),
		Samples: samples,
	}, nil
}

// DecodeSamples decodes a binary payload of little-endian signed 16-bit
// samples.
func DecodeSamples(buf []byte) []int16 {
	data := make([]int16, len(buf)/2)
	for i := range data {
		data[i] = int16(binary.LittleEndian.Uint16(buf[2*i:]))
	}

	return data
}

// ScaleSamples converts ADC samples to volts using the given calibration
// factor.
func ScaleSamples(adc []int16, factor float64) []float32 {
	out := make([]float32, len(adc))
	f := float32(factor)
	for i, v := range adc {
		out[i] = float32(v) * f
	}

	return out
}

// NewTRRecord assembles a transient record from its decoded header and binary
// payload.
//
// The payload must contain exactly header.Samples little-endian int16
// samples; any mismatch is a framing corruption and yields
// ErrSampleCountMismatch. If raw is true the ADC values are kept unscaled,
// otherwise they are converted to volts using the given scaling.
func NewTRRecord(header TRHeader, payload []byte, s Scaling, raw bool) (*TRRecord, error) {
	if len(payload) != 2*header.Samples {
		return nil, fmt.Errorf("%w: got %d bytes, expected %d samples",
			ErrSampleCountMismatch, len(payload), header.Samples)
	}

	adc := DecodeSamples(payload)
	if len(adc) != header.Samples {
		return nil, fmt.Errorf("%w: decoded %d samples, expected %d",
			ErrSampleCountMismatch, len(adc), header.Samples)
	}

	rec := &TRRecord{
		Channel: header.Channel,
		TRAI:    header.TRAI,
		Time:    TicksToSeconds(header.Ticks, s.TimeBase),
		Samples: header.Samples,
		Raw:     raw,
	}
	if raw {
		rec.DataRaw = adc
	} else {
		rec.Data = ScaleSamples(adc, s.ADCToVolts)
	}

	return rec, nil
}

// sanity bound for NS fields, prevents absurd allocations on corrupt headers
const maxTRSamples = math.MaxInt32 / 2
