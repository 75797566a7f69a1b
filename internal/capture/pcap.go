//go:build pcap
// +build pcap

package capture

import (
	"context"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"github.com/cameronsims/DynamicPopulationDensity/internal/monitoring"
)

// PCAPSource reads frames through libpcap.
type PCAPSource struct {
	handle *pcap.Handle
	desc   string
}

// OpenPCAP opens the configured capture and applies the BPF filter.
func OpenPCAP(cfg PCAPConfig) (*PCAPSource, error) {
	var (
		handle *pcap.Handle
		err    error
		desc   string
	)
	if cfg.File != "" {
		desc = cfg.File
		handle, err = pcap.OpenOffline(cfg.File)
	} else {
		desc = cfg.Interface
		snap := cfg.SnapLen
		if snap <= 0 {
			snap = defaultSnapLen
		}
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = pcap.BlockForever
		}
		handle, err = pcap.OpenLive(cfg.Interface, int32(snap), cfg.Promisc, timeout)
	}
	if err != nil {
		return nil, fmt.Errorf("open capture %s: %w", desc, err)
	}
	if cfg.Filter != "" {
		if err := handle.SetBPFFilter(cfg.Filter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("set BPF filter %q: %w", cfg.Filter, err)
		}
		monitoring.Logf("capture %s: BPF filter %q", desc, cfg.Filter)
	}
	return &PCAPSource{handle: handle, desc: desc}, nil
}

// Run decodes frames until the capture ends or ctx is done.
func (s *PCAPSource) Run(ctx context.Context, fn func(Observation)) error {
	src := gopacket.NewPacketSource(s.handle, s.handle.LinkType())
	n, err := ProcessPackets(ctx, src, fn)
	monitoring.Logf("capture %s: read %d packets", s.desc, n)
	return err
}

// Close releases the pcap handle.
func (s *PCAPSource) Close() error {
	s.handle.Close()
	return nil
}
