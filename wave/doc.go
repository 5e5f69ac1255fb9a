// Package wave provides the protocol core shared by the conditionWave and
// spotWave device drivers: key/value response-line parsing, typed AE/TR data
// records, ADC unit conversion, firmware version comparison, the acquisition
// state manager, and the task manager used to supervise acquisition
// goroutines.
//
// Both devices speak the same newline-terminated ASCII command protocol and
// return either key=value response blocks (get_info, get_status, get_setup)
// or interleaved structured data lines with raw binary sample payloads
// (get_ae_data, get_tr_data). This package implements those wire formats; the
// condwave and spotwave packages add transport and device-specific command
// sets on top.
//
// Parsing and unit conversion are pure: all calibration and clock parameters
// are passed in explicitly via Scaling, so the decoders can be tested without
// a device or any driver state.
package wave
