package wave

// Scaling bundles the conversion parameters needed to decode one data record:
// the device clock and the ADC calibration factors of the channel the record
// belongs to. It is passed to the decoders explicitly so that parsing stays a
// pure function of device-reported calibration.
type Scaling struct {
	// TimeBase is the device clock in Hz; tick counts in records are divided
	// by it to obtain seconds.
	TimeBase float64
	// ADCToVolts converts an ADC code to volts for the selected input range.
	ADCToVolts float64
	// ADCToEU converts a raw energy code to energy units (1e-14 V²s,
	// EN 1330-9) for the selected input range.
	ADCToEU float64
}

// ADCToVolts converts an ADC code to volts using the given calibration factor.
func ADCToVolts(code int, factor float64) float64 {
	return float64(code) * factor
}

// ADCToEUFactor computes the fixed per-range scalar that converts raw energy
// codes to energy units (1e-14 V²s): factor² × 1e14 / clock.
//
// It must be recomputed whenever the calibration factor or the range
// selection changes.
func ADCToEUFactor(factor, clock float64) float64 {
	return factor * factor * 1e14 / clock
}

// TicksToSeconds converts a device tick count to seconds.
func TicksToSeconds(ticks int64, clock float64) float64 {
	return float64(ticks) / clock
}
