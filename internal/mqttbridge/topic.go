package mqttbridge

import (
	"strings"

	"github.com/srg/blecentral/internal/device"
)

// DefaultTopicPrefix is used when no prefix is configured
const DefaultTopicPrefix = "blecentral"

// Topic returns the topic an event is published to
func Topic(prefix string, ev device.Event) string {
	return joinTopic(prefix, ev.ID.String(), ev.Kind.String())
}

// StatusTopic returns the retained bridge status topic
func StatusTopic(prefix string) string {
	return joinTopic(prefix, "status")
}

func joinTopic(prefix string, parts ...string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return prefix + "/" + strings.Join(parts, "/")
}
