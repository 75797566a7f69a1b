package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cameronsims/DynamicPopulationDensity/internal/density"
)

func TestParseBLELine(t *testing.T) {
	at := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		line     string
		addr     string
		strength *int
	}{
		{"csv", "aa:bb:cc:dd:ee:01,-61", "AA:BB:CC:DD:EE:01", intPtr(-61)},
		{"csv spaces", "  AA:BB:CC:DD:EE:01 , -48 \r", "AA:BB:CC:DD:EE:01", intPtr(-48)},
		{"csv no rssi", "AA:BB:CC:DD:EE:01", "AA:BB:CC:DD:EE:01", nil},
		{"json", `{"addr":"aa:bb:cc:dd:ee:02","rssi":-75}`, "AA:BB:CC:DD:EE:02", intPtr(-75)},
		{"json no rssi", `{"addr":"AA:BB:CC:DD:EE:02"}`, "AA:BB:CC:DD:EE:02", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, err := ParseBLELine(tt.line, at)
			require.NoError(t, err)
			assert.Equal(t, Observation{
				Address:    tt.addr,
				Strength:   tt.strength,
				PacketType: density.PacketBluetooth,
				Time:       at,
			}, obs)
		})
	}
}

func TestParseBLELineRejects(t *testing.T) {
	for _, line := range []string{"", "   ", "# scanner v1.2", "SCAN ON", "a,b,c"} {
		_, err := ParseBLELine(line, time.Time{})
		assert.ErrorIs(t, err, ErrNotObservation, "%q", line)
	}

	_, err := ParseBLELine("AA:BB:CC:DD:EE:01,loud", time.Time{})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotObservation)

	_, err = ParseBLELine(`{"addr":`, time.Time{})
	assert.Error(t, err)
}
