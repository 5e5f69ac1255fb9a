// Package condwave provides the client driver for the conditionWave device, a
// multi-channel acoustic-emission digitizer controlled via TCP/IP.
//
// The device exposes a control port (5432 by default) that accepts
// newline-terminated ASCII commands and returns key=value response blocks or
// interleaved AE data lines and transient records with raw binary sample
// payloads. In addition, each channel has a dedicated streaming port
// (control port + channel number) that pushes a headerless stream of
// little-endian int16 samples while acquisition is running.
//
// Connection Establishment:
//   - Create a ConnectionConfig with NewConnectionConfig(host, opts...).
//   - Create a Conn with NewConn and open it with Connect. Connect validates
//     the firmware version and fetches the ADC calibration factors.
//
// Data Acquisition:
//   - Apply settings with the Set* methods (channel 0 addresses all
//     channels at once).
//   - Use Acquire for the high-level polling loop yielding wave.Record
//     values, or GetAEData/GetTRData for single polls.
//   - Use Stream for continuous raw sample streaming on one channel. Open
//     every stream before calling StartAcquisition: the device starts
//     pushing samples on the streaming ports as soon as it receives
//     start_acq, and samples sent to an unconnected port are lost.
//
// Usage Example:
//
//	cfg, err := condwave.NewConnectionConfig("192.168.0.100")
//	// ... handle error ...
//	conn, err := condwave.NewConn(cfg)
//	// ... handle error ...
//	if err := conn.Connect(ctx); err != nil {
//	    // ... handle error ...
//	}
//	defer conn.Close()
//
//	_ = conn.SetRange(0, 0.05) // 50 mV on all channels
//	records, err := conn.Acquire(ctx, false)
//	// ... handle error ...
//	for rec := range records {
//	    switch rec.Kind() {
//	    case wave.KindAE:
//	        // ... handle hit/status record ...
//	    case wave.KindTR:
//	        // ... handle transient record ...
//	    }
//	}
package condwave
