package capture

import (
	"bytes"
	"context"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/cameronsims/DynamicPopulationDensity/internal/density"
)

// Decode extracts a device sighting from a captured frame. 802.11 management
// and data frames yield a WiFi observation keyed on the transmitter address,
// with the RadioTap antenna signal when present. Wired frames yield an
// Ethernet observation keyed on the source MAC with no strength.
func Decode(p gopacket.Packet) (Observation, bool) {
	ts := p.Metadata().Timestamp

	if l := p.Layer(layers.LayerTypeDot11); l != nil {
		d11 := l.(*layers.Dot11)
		switch d11.Type.MainType() {
		case layers.Dot11TypeMgmt, layers.Dot11TypeData:
		default:
			return Observation{}, false
		}
		if !usableSource(d11.Address2) {
			return Observation{}, false
		}
		obs := Observation{
			Address:    NormalizeAddress(d11.Address2.String()),
			PacketType: density.PacketWiFi,
			Time:       ts,
		}
		if rl := p.Layer(layers.LayerTypeRadioTap); rl != nil {
			rt := rl.(*layers.RadioTap)
			if rt.Present.DBMAntennaSignal() {
				obs.Strength = intPtr(int(rt.DBMAntennaSignal))
			}
		}
		return obs, true
	}

	if l := p.Layer(layers.LayerTypeEthernet); l != nil {
		eth := l.(*layers.Ethernet)
		if !usableSource(eth.SrcMAC) {
			return Observation{}, false
		}
		return Observation{
			Address:    NormalizeAddress(eth.SrcMAC.String()),
			PacketType: density.PacketEthernet,
			Time:       ts,
		}, true
	}
	return Observation{}, false
}

var zeroMAC = make(net.HardwareAddr, 6)

// usableSource rejects empty, all-zero and group addresses, none of which
// identify a single transmitter.
func usableSource(hw net.HardwareAddr) bool {
	if len(hw) == 0 || bytes.Equal(hw, zeroMAC) {
		return false
	}
	return hw[0]&0x01 == 0
}

// PacketStream is satisfied by *gopacket.PacketSource.
type PacketStream interface {
	Packets() chan gopacket.Packet
}

// ProcessPackets decodes packets from src and hands each observation to fn
// until the stream ends or ctx is done. It returns the number of packets
// read.
func ProcessPackets(ctx context.Context, src PacketStream, fn func(Observation)) (int, error) {
	packets := src.Packets()
	n := 0
	for {
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		case p, ok := <-packets:
			if !ok || p == nil {
				return n, nil
			}
			n++
			if obs, ok := Decode(p); ok {
				fn(obs)
			}
		}
	}
}
