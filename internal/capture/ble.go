package capture

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/cameronsims/DynamicPopulationDensity/internal/density"
)

// ErrNotObservation marks scanner output that carries no sighting, such as
// banners and command echoes.
var ErrNotObservation = errors.New("capture: line is not an observation")

type bleJSON struct {
	Addr string `json:"addr"`
	RSSI *int   `json:"rssi"`
}

// ParseBLELine decodes one line from the serial BLE scanner. Two forms are
// accepted: "AA:BB:CC:DD:EE:FF,-61" and {"addr":"AA:BB:..","rssi":-61}. The
// RSSI may be omitted in either form. Lines starting with '#' are comments.
func ParseBLELine(line string, at time.Time) (Observation, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Observation{}, ErrNotObservation
	}

	var addr string
	var rssi *int
	if strings.HasPrefix(line, "{") {
		var msg bleJSON
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			return Observation{}, fmt.Errorf("decode scanner json: %w", err)
		}
		addr, rssi = msg.Addr, msg.RSSI
	} else {
		fields := strings.Split(line, ",")
		if len(fields) > 2 {
			return Observation{}, fmt.Errorf("%w: %q", ErrNotObservation, line)
		}
		addr = fields[0]
		if len(fields) == 2 && strings.TrimSpace(fields[1]) != "" {
			v, err := strconv.Atoi(strings.TrimSpace(fields[1]))
			if err != nil {
				return Observation{}, fmt.Errorf("parse rssi %q: %w", fields[1], err)
			}
			rssi = &v
		}
	}

	hw, err := net.ParseMAC(strings.TrimSpace(addr))
	if err != nil {
		return Observation{}, fmt.Errorf("%w: %q", ErrNotObservation, line)
	}
	return Observation{
		Address:    strings.ToUpper(hw.String()),
		Strength:   rssi,
		PacketType: density.PacketBluetooth,
		Time:       at,
	}, nil
}
