package mqtt

import (
	"fmt"
	"strings"
)

// Message kinds, the last topic segment.
const (
	KindAttendance = "attendance"
	KindEvents     = "events"
)

func prefixOrDefault(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return DefaultTopicPrefix
	}
	return p
}

// Topic returns <prefix>/<node>/<kind>.
func Topic(prefix, nodeID, kind string) string {
	return prefixOrDefault(prefix) + "/" + nodeID + "/" + kind
}

// Filter returns the wildcard subscription for kind across all nodes.
func Filter(prefix, kind string) string {
	return Topic(prefix, "+", kind)
}

// ParseTopic splits a topic published under prefix into its node and kind.
func ParseTopic(prefix, topic string) (nodeID, kind string, err error) {
	root := prefixOrDefault(prefix) + "/"
	if !strings.HasPrefix(topic, root) {
		return "", "", fmt.Errorf("topic %q is outside %q", topic, root)
	}
	parts := strings.Split(strings.TrimPrefix(topic, root), "/")
	if len(parts) != 2 || parts[0] == "" {
		return "", "", fmt.Errorf("topic %q: want %s<node>/<kind>", topic, root)
	}
	switch parts[1] {
	case KindAttendance, KindEvents:
	default:
		return "", "", fmt.Errorf("topic %q: unknown kind %q", topic, parts[1])
	}
	return parts[0], parts[1], nil
}
