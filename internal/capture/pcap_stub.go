//go:build !pcap
// +build !pcap

package capture

import (
	"context"
	"errors"
)

// ErrPCAPDisabled is returned by builds without libpcap.
var ErrPCAPDisabled = errors.New("pcap capture not enabled: rebuild with -tags=pcap")

// PCAPSource is unavailable in this build.
type PCAPSource struct{}

// OpenPCAP always fails without the pcap build tag.
func OpenPCAP(PCAPConfig) (*PCAPSource, error) { return nil, ErrPCAPDisabled }

func (*PCAPSource) Run(context.Context, func(Observation)) error { return ErrPCAPDisabled }

func (*PCAPSource) Close() error { return nil }
