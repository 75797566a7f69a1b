package mqtt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cameronsims/DynamicPopulationDensity/internal/capture"
	"github.com/cameronsims/DynamicPopulationDensity/internal/density"
)

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// loopback delivers published messages to handlers whose filter matches.
type loopback struct {
	sent     []published
	handlers map[string]MessageHandler
	errs     []error
	failPub  error
}

func newLoopback() *loopback { return &loopback{handlers: map[string]MessageHandler{}} }

func (l *loopback) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if l.failPub != nil {
		return l.failPub
	}
	l.sent = append(l.sent, published{topic, qos, retained, payload})
	for filter, h := range l.handlers {
		if matches(filter, topic) {
			l.errs = append(l.errs, h(topic, payload))
		}
	}
	return nil
}

func (l *loopback) Subscribe(topic string, _ byte, h MessageHandler) error {
	l.handlers[topic] = h
	return nil
}

func matches(filter, topic string) bool {
	fp, tp := splitTopic(filter), splitTopic(topic)
	if len(fp) != len(tp) {
		return false
	}
	for i := range fp {
		if fp[i] != "+" && fp[i] != tp[i] {
			return false
		}
	}
	return true
}

func splitTopic(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

type sinks struct {
	detections []density.DetectionRecord
	events     []density.NodeEvent
}

func (s *sinks) InsertDetections(_ context.Context, recs []density.DetectionRecord) error {
	s.detections = append(s.detections, recs...)
	return nil
}

func (s *sinks) RecordNodeEvent(_ context.Context, ev density.NodeEvent) error {
	s.events = append(s.events, ev)
	return nil
}

func intp(v int) *int { return &v }

func TestTopics(t *testing.T) {
	assert.Equal(t, "dpd/n1/attendance", Topic("", "n1", KindAttendance))
	assert.Equal(t, "site/a/+/events", Filter("/site/a/", KindEvents))

	node, kind, err := ParseTopic("site/a", "site/a/n1/events")
	require.NoError(t, err)
	assert.Equal(t, "n1", node)
	assert.Equal(t, KindEvents, kind)

	for _, bad := range []string{"other/n1/events", "dpd/n1", "dpd//events", "dpd/n1/status", "dpd/n1/x/events"} {
		_, _, err := ParseTopic("", bad)
		assert.Error(t, err, bad)
	}
}

func TestPublishConsumeRoundTrip(t *testing.T) {
	perth, err := time.LoadLocation("Australia/Perth")
	require.NoError(t, err)
	at := time.Date(2025, 3, 10, 2, 5, 0, 0, time.UTC)

	bus := newLoopback()
	store := &sinks{}
	c := &Consumer{Detections: store, Events: store, Location: perth}
	require.NoError(t, c.Start(context.Background(), bus))
	assert.Len(t, bus.handlers, 2)

	p := NewPublisher(bus, "", 1)
	recs := []density.DetectionRecord{
		{Timestamp: at, NodeID: "n1", DeviceID: "d1", SignalStrength: intp(-60), PacketType: density.PacketBluetooth},
		{Timestamp: at, NodeID: "n1", DeviceID: "d2", PacketType: density.PacketWiFi},
	}
	require.NoError(t, p.PublishDetections("n1", recs))
	require.NoError(t, p.PublishDetections("n1", nil))
	require.NoError(t, p.PublishEvent(density.NodeEvent{NodeID: "n1", IsPowered: true, Timestamp: at}))

	require.Len(t, bus.sent, 2)
	assert.False(t, bus.sent[0].retained)
	assert.True(t, bus.sent[1].retained)
	for _, err := range bus.errs {
		assert.NoError(t, err)
	}

	want := make([]density.DetectionRecord, len(recs))
	for i, r := range recs {
		r.Timestamp = at.In(perth)
		want[i] = r
	}
	if diff := cmp.Diff(want, store.detections); diff != "" {
		t.Errorf("detections mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, store.events, 1)
	assert.Same(t, perth, store.events[0].Timestamp.Location())
	assert.Equal(t, 10, store.events[0].Timestamp.Hour())
}

func TestConsumerNodeFromTopic(t *testing.T) {
	store := &sinks{}
	c := &Consumer{Detections: store, Events: store}

	require.NoError(t, c.Handle(context.Background(), "dpd/n2/attendance", []byte(`[{"device_id":"d","date_time":"2025-03-10T10:00:00Z"}]`)))
	require.Len(t, store.detections, 1)
	assert.Equal(t, "n2", store.detections[0].NodeID)

	require.NoError(t, c.Handle(context.Background(), "dpd/n2/events", []byte(`{"is_powered":true}`)))
	assert.Equal(t, "n2", store.events[0].NodeID)
}

func TestConsumerRejects(t *testing.T) {
	store := &sinks{}
	c := &Consumer{Detections: store, Events: store}
	ctx := context.Background()

	assert.Error(t, c.Handle(ctx, "dpd/n1/attendance", []byte(`[{"node_id":"n2","device_id":"d"}]`)))
	assert.Error(t, c.Handle(ctx, "dpd/n1/events", []byte(`{"node_id":"n2"}`)))
	assert.Error(t, c.Handle(ctx, "dpd/n1/attendance", []byte(`{not json`)))
	assert.Error(t, c.Handle(ctx, "elsewhere/n1/attendance", []byte(`[]`)))
	assert.NoError(t, c.Handle(ctx, "dpd/n1/attendance", []byte(`[]`)))
	assert.Empty(t, store.detections)
	assert.Empty(t, store.events)
}

func TestConsumerRejectsInvalidDetections(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"packet type above range", `[{"device_id":"d","packet_type":42,"date_time":"2025-03-10T10:00:00Z"}]`},
		{"negative packet type", `[{"device_id":"d","packet_type":-1,"date_time":"2025-03-10T10:00:00Z"}]`},
		{"missing device", `[{"packet_type":1,"date_time":"2025-03-10T10:00:00Z"}]`},
		{"missing timestamp", `[{"device_id":"d","packet_type":1}]`},
		{"one bad record fails the batch", `[{"device_id":"a","date_time":"2025-03-10T10:00:00Z"},{"device_id":"b","packet_type":5,"date_time":"2025-03-10T10:00:00Z"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &sinks{}
			c := &Consumer{Detections: store, Events: store}
			err := c.Handle(context.Background(), "dpd/n1/attendance", []byte(tt.payload))
			assert.ErrorIs(t, err, ErrInvalidDetection)
			assert.Empty(t, store.detections)
		})
	}

	store := &sinks{}
	c := &Consumer{Detections: store, Events: store}
	require.NoError(t, c.Handle(context.Background(), "dpd/n1/attendance",
		[]byte(`[{"device_id":"d","packet_type":4,"date_time":"2025-03-10T10:00:00Z"}]`)))
	require.Len(t, store.detections, 1)
	assert.Equal(t, density.PacketOther, store.detections[0].PacketType)
}

func TestConsumerStoppedContext(t *testing.T) {
	bus := newLoopback()
	store := &sinks{}
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, (&Consumer{Detections: store, Events: store}).Start(ctx, bus))
	cancel()

	require.NoError(t, NewPublisher(bus, "", 0).PublishEvent(density.NodeEvent{NodeID: "n1"}))
	require.Len(t, bus.errs, 1)
	assert.ErrorIs(t, bus.errs[0], context.Canceled)
	assert.Empty(t, store.events)
}

func TestPublishError(t *testing.T) {
	bus := newLoopback()
	bus.failPub = errors.New("broker down")
	err := NewPublisher(bus, "", 0).PublishEvent(density.NodeEvent{NodeID: "n1"})
	assert.EqualError(t, err, "broker down")
}

func TestPublisherDeliversBatch(t *testing.T) {
	bus := newLoopback()
	store := &sinks{}
	require.NoError(t, (&Consumer{Detections: store, Events: store}).Start(context.Background(), bus))

	var sink capture.BatchSink = NewPublisher(bus, "", 1)
	at := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	b := capture.Batch{
		Detections: []density.DetectionRecord{{Timestamp: at, NodeID: "n1", DeviceID: "d1"}},
		Event:      density.NodeEvent{NodeID: "n1", IsPowered: true, IsReceivingData: true, Timestamp: at},
	}
	require.NoError(t, sink.Deliver(context.Background(), b))
	assert.Len(t, store.detections, 1)
	require.Len(t, store.events, 1)
	assert.True(t, store.events[0].IsReceivingData)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sink.Deliver(ctx, b), context.Canceled)
}
