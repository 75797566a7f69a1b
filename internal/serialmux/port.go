package serialmux

import "io"

// SerialPorter is the subset of a serial port the mux needs. Tests supply an
// in-memory implementation.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}
