package capture

import (
	"context"
	"errors"

	"github.com/cameronsims/DynamicPopulationDensity/internal/monitoring"
	"github.com/cameronsims/DynamicPopulationDensity/internal/timeutil"
)

// Source produces observations until ctx is done or its input ends.
type Source interface {
	Run(ctx context.Context, fn func(Observation)) error
}

// LineSubscriber is the part of serialmux.SerialMux a SerialSource reads.
type LineSubscriber interface {
	Subscribe() (string, chan string)
	Unsubscribe(id string)
}

// SerialSource reads BLE scanner lines from a serial mux.
type SerialSource struct {
	Lines LineSubscriber
	Clock timeutil.Clock
}

// Run subscribes to the mux and parses each line. Lines that are not
// sightings are skipped; malformed ones are logged.
func (s SerialSource) Run(ctx context.Context, fn func(Observation)) error {
	clock := s.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	id, lines := s.Lines.Subscribe()
	defer s.Lines.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			obs, err := ParseBLELine(line, clock.Now())
			if err != nil {
				if !errors.Is(err, ErrNotObservation) {
					monitoring.Warnf("scanner line %q: %v", line, err)
				}
				continue
			}
			fn(obs)
		}
	}
}

// PacketSource adapts any gopacket stream to a Source.
type PacketSource struct {
	Stream PacketStream
}

// Run decodes packets until the stream ends.
func (p PacketSource) Run(ctx context.Context, fn func(Observation)) error {
	n, err := ProcessPackets(ctx, p.Stream, fn)
	monitoring.Logf("packet source finished after %d packets", n)
	return err
}
