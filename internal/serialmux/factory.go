package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// OpenScanner opens the scanner attached at path and wraps it in a mux.
func OpenScanner(path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open scanner %s: %w", path, err)
	}
	return NewSerialMux[serial.Port](port), nil
}

// ListPorts returns the serial device paths present on this host.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
