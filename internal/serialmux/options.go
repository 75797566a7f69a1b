package serialmux

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// DefaultBaudRate matches the USB BLE scanner firmware.
const DefaultBaudRate = 115200

// PortOptions are the line settings used when opening the scanner port.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// Normalize fills zero values with 8N1 at DefaultBaudRate and rejects
// settings go.bug.st/serial cannot express.
func (o PortOptions) Normalize() (PortOptions, error) {
	out := o
	if out.BaudRate <= 0 {
		out.BaudRate = DefaultBaudRate
	}
	if out.DataBits == 0 {
		out.DataBits = 8
	}
	if out.DataBits < 5 || out.DataBits > 8 {
		return out, fmt.Errorf("data bits %d out of range 5..8", out.DataBits)
	}
	if out.StopBits == 0 {
		out.StopBits = 1
	}
	if out.StopBits != 1 && out.StopBits != 2 {
		return out, fmt.Errorf("stop bits %d: want 1 or 2", out.StopBits)
	}

	switch p := strings.ToUpper(strings.TrimSpace(out.Parity)); p {
	case "", "N", "NONE":
		out.Parity = "N"
	case "E", "EVEN":
		out.Parity = "E"
	case "O", "ODD":
		out.Parity = "O"
	default:
		return out, fmt.Errorf("parity %q: want N, E or O", o.Parity)
	}
	return out, nil
}

// SerialMode converts normalized options into a serial.Mode.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	n, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	mode := &serial.Mode{
		BaudRate: n.BaudRate,
		DataBits: n.DataBits,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}
	if n.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	switch n.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	}
	return mode, nil
}
