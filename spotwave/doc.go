// Package spotwave implements the client driver for the spotWave device, a
// single-channel acoustic-emission digitizer attached via USB that exposes a
// virtual serial port.
//
// All communication runs over one serial connection: newline-terminated ASCII
// commands, key=value response blocks, and binary little-endian int16 sample
// payloads following transient record headers.
//
// Usage:
//
//	ports, _ := spotwave.Discover()
//	conn, err := spotwave.Open(ports[0])
//	if err != nil {
//		// handle error
//	}
//	defer conn.Close()
//
//	if err := conn.Connect(ctx); err != nil {
//		// handle error
//	}
//
//	records, err := conn.Acquire(ctx, false)
//	if err != nil {
//		// handle error
//	}
//	for record := range records {
//		switch r := record.(type) {
//		case *wave.AERecord:
//			// hit or status data
//		case *wave.TRRecord:
//			// transient waveform
//		}
//	}
//
// For testing, NewConn accepts any implementation of the Port interface in
// place of a real serial port.
package spotwave
