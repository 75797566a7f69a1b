// Package density turns raw device detections captured by nodes into
// coarse occupancy estimates, one record per node per 30 minute bucket.
//
// Everything in this package is pure and in-memory. Storage, capture and
// scheduling live in other packages and call Aggregate with a snapshot of
// the detection holding store.
package density

import (
	"fmt"
	"math"
	"time"
)

// PacketType is the kind of frame a detection was derived from. The integer
// values are persisted as attendance_history.packet_type.
type PacketType int

const (
	PacketNone PacketType = iota
	PacketBluetooth
	PacketWiFi
	PacketEthernet
	PacketOther
)

func (p PacketType) String() string {
	switch p {
	case PacketNone:
		return "none"
	case PacketBluetooth:
		return "bluetooth"
	case PacketWiFi:
		return "wifi"
	case PacketEthernet:
		return "ethernet"
	case PacketOther:
		return "other"
	default:
		return fmt.Sprintf("packet_type(%d)", int(p))
	}
}

// Valid reports whether p is one of the known packet types (0..4).
func (p PacketType) Valid() bool {
	return p >= PacketNone && p <= PacketOther
}

// DetectionRecord is a single observation of a device by a node. DeviceID is
// always the salted hash of the hardware address, never the address itself.
type DetectionRecord struct {
	Timestamp      time.Time  `json:"date_time"`
	NodeID         string     `json:"node_id"`
	DeviceID       string     `json:"device_id"`
	SignalStrength *int       `json:"signal_strength"`
	PacketType     PacketType `json:"packet_type"`
}

// DensityRecord is one compacted occupancy observation for a node and bucket.
type DensityRecord struct {
	Timestamp             time.Time `json:"date_time"`
	LocationID            string    `json:"location_id"`
	NodeID                string    `json:"node_id"`
	TotalEstimatedDevices int       `json:"total_estimated_devices"`
	TotalEstimatedHumans  int       `json:"total_estimated_humans"`
	EstimationFactor      float64   `json:"estimation_factors"`
}

// NewDensityRecord builds the record for node at bucket with the given number
// of surviving devices. The timestamp is normalised to its bucket.
func NewDensityRecord(bucket time.Time, node Node, devices int, factor float64) DensityRecord {
	return DensityRecord{
		Timestamp:             Bucket(bucket),
		LocationID:            node.LocationID,
		NodeID:                node.ID,
		TotalEstimatedDevices: devices,
		TotalEstimatedHumans:  EstimateHumans(devices, factor),
		EstimationFactor:      factor,
	}
}

// EstimateHumans converts a device count into a head count using the average
// number of devices carried per person. Non-positive factors yield zero.
func EstimateHumans(devices int, factor float64) int {
	if devices <= 0 || factor <= 0 || math.IsNaN(factor) {
		return 0
	}
	return int(math.Floor(float64(devices) / factor))
}

// Node is a fixed capture point. It is read-only input to the pipeline.
type Node struct {
	ID                     string `json:"node_id"`
	Name                   string `json:"name"`
	IPAddress              string `json:"ip_address"`
	MACAddress             string `json:"mac_address"`
	Model                  string `json:"model"`
	Brand                  string `json:"brand"`
	RAMSize                int    `json:"ram_size"`
	RAMUnit                string `json:"ram_unit"`
	StorageSize            int    `json:"storage_size"`
	StorageUnit            string `json:"storage_unit"`
	StorageType            string `json:"storage_type"`
	IsPoECompatible        bool   `json:"is_poe_compatible"`
	IsWirelessConnectivity bool   `json:"is_wireless_connectivity"`
	LocationID             string `json:"location_id"`
}

// Location is the room a node is installed in.
type Location struct {
	ID          string `json:"location_id"`
	Name        string `json:"name"`
	Building    string `json:"building"`
	Level       string `json:"level"`
	Room        string `json:"room"`
	Description string `json:"description"`
}

// NodeEvent is the heartbeat a node emits once per scan window.
type NodeEvent struct {
	NodeID          string    `json:"node_id"`
	IsPowered       bool      `json:"is_powered"`
	IsReceivingData bool      `json:"is_receiving_data"`
	Timestamp       time.Time `json:"date_time"`
}

// Snapshot is a consistent read of the detection holding store. HighWater
// identifies the newest record included so that a later clear removes
// exactly what was read and nothing inserted afterwards.
type Snapshot struct {
	Records   []DetectionRecord
	HighWater int64
}
