package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cameronsims/DynamicPopulationDensity/internal/capture"
	"github.com/cameronsims/DynamicPopulationDensity/internal/density"
)

// Publisher sends one node's output to the broker.
type Publisher struct {
	t      Transport
	prefix string
	qos    byte
}

// NewPublisher returns a publisher writing under prefix.
func NewPublisher(t Transport, prefix string, qos byte) *Publisher {
	return &Publisher{t: t, prefix: prefix, qos: qos}
}

// PublishDetections sends recs as one JSON array. Empty batches are not sent.
func (p *Publisher) PublishDetections(nodeID string, recs []density.DetectionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	payload, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encode detections: %w", err)
	}
	return p.t.Publish(Topic(p.prefix, nodeID, KindAttendance), p.qos, false, payload)
}

// PublishEvent sends a heartbeat. Events are retained so a late subscriber
// sees each node's last state.
func (p *Publisher) PublishEvent(ev density.NodeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode node event: %w", err)
	}
	return p.t.Publish(Topic(p.prefix, ev.NodeID, KindEvents), p.qos, true, payload)
}

// Deliver publishes a capture batch: detections first, then the heartbeat.
// It satisfies capture.BatchSink.
func (p *Publisher) Deliver(ctx context.Context, b capture.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.PublishDetections(b.Event.NodeID, b.Detections); err != nil {
		return err
	}
	return p.PublishEvent(b.Event)
}
