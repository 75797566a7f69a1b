package capture

import (
	"time"

	"github.com/cameronsims/DynamicPopulationDensity/internal/density"
)

// Observation is one sighting of a hardware address, before hashing.
type Observation struct {
	Address    string
	Strength   *int
	PacketType density.PacketType
	Time       time.Time
}

func intPtr(v int) *int { return &v }
