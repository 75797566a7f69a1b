package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cameronsims/DynamicPopulationDensity/internal/density"
)

// DetectionSink receives decoded detection batches.
type DetectionSink interface {
	InsertDetections(ctx context.Context, recs []density.DetectionRecord) error
}

// EventSink receives node heartbeats.
type EventSink interface {
	RecordNodeEvent(ctx context.Context, ev density.NodeEvent) error
}

// Consumer moves messages from the broker into the server's stores.
type Consumer struct {
	Detections DetectionSink
	Events     EventSink
	Prefix     string
	QoS        byte
	// Location is applied to inbound timestamps so they bucket alongside
	// locally stored records.
	Location *time.Location
}

// Start subscribes to attendance and event topics for every node. Messages
// are handled with ctx until it is cancelled.
func (c *Consumer) Start(ctx context.Context, t Transport) error {
	handler := func(topic string, payload []byte) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return c.Handle(ctx, topic, payload)
	}
	for _, kind := range []string{KindAttendance, KindEvents} {
		if err := t.Subscribe(Filter(c.Prefix, kind), c.QoS, handler); err != nil {
			return err
		}
	}
	return nil
}

func (c *Consumer) localize(t time.Time) time.Time {
	if c.Location == nil {
		return t
	}
	return t.In(c.Location)
}

// Handle decodes one message. Records that name no node take the node from
// the topic; records naming a different node are rejected.
func (c *Consumer) Handle(ctx context.Context, topic string, payload []byte) error {
	nodeID, kind, err := ParseTopic(c.Prefix, topic)
	if err != nil {
		return err
	}

	switch kind {
	case KindAttendance:
		var recs []density.DetectionRecord
		if err := json.Unmarshal(payload, &recs); err != nil {
			return fmt.Errorf("decode detections from %s: %w", nodeID, err)
		}
		if len(recs) == 0 {
			return nil
		}
		for i := range recs {
			if recs[i].NodeID == "" {
				recs[i].NodeID = nodeID
			} else if recs[i].NodeID != nodeID {
				return fmt.Errorf("detection for node %q published on %s", recs[i].NodeID, topic)
			}
			if err := validDetection(recs[i]); err != nil {
				return fmt.Errorf("detection %d on %s: %w", i, topic, err)
			}
			recs[i].Timestamp = c.localize(recs[i].Timestamp)
		}
		return c.Detections.InsertDetections(ctx, recs)

	default:
		var ev density.NodeEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("decode event from %s: %w", nodeID, err)
		}
		if ev.NodeID == "" {
			ev.NodeID = nodeID
		} else if ev.NodeID != nodeID {
			return fmt.Errorf("event for node %q published on %s", ev.NodeID, topic)
		}
		ev.Timestamp = c.localize(ev.Timestamp)
		return c.Events.RecordNodeEvent(ctx, ev)
	}
}

// ErrInvalidDetection is wrapped when an inbound record breaks the
// attendance_history contract.
var ErrInvalidDetection = errors.New("invalid detection")

func validDetection(r density.DetectionRecord) error {
	switch {
	case r.DeviceID == "":
		return fmt.Errorf("%w: missing device_id", ErrInvalidDetection)
	case r.Timestamp.IsZero():
		return fmt.Errorf("%w: missing date_time", ErrInvalidDetection)
	case !r.PacketType.Valid():
		return fmt.Errorf("%w: packet_type %d out of range", ErrInvalidDetection, int(r.PacketType))
	}
	return nil
}
