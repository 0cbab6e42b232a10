package mqttbridge

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/broadcast"
	"github.com/srg/blecentral/internal/device"
)

// Publisher sends a payload to a topic. *Client implements it.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Forwarder copies events from a subscription to a Publisher
type Forwarder struct {
	publisher Publisher
	prefix    string
	logger    *logrus.Logger
}

// NewForwarder creates a forwarder publishing under prefix
func NewForwarder(publisher Publisher, prefix string, logger *logrus.Logger) *Forwarder {
	if logger == nil {
		logger = logrus.New()
	}
	return &Forwarder{
		publisher: publisher,
		prefix:    prefix,
		logger:    logger,
	}
}

// Run forwards events from sub until ctx is cancelled or the stream closes,
// then closes sub. Subscribe before starting the scan so no event is missed.
// Publish failures are logged and skipped. Returns the number of events
// published.
func (f *Forwarder) Run(ctx context.Context, sub *broadcast.Subscription[device.Event]) (int, error) {
	defer sub.Close()
	f.logger.WithField("subscription", sub.ID()).Debug("MQTT forwarder started")

	published := 0
	for {
		select {
		case <-ctx.Done():
			return published, ctx.Err()
		case ev, ok := <-sub.C():
			if !ok {
				return published, nil
			}
			if err := f.forward(ev); err != nil {
				f.logger.WithError(err).WithFields(logrus.Fields{
					"event":   ev.Kind.String(),
					"address": ev.ID.String(),
				}).Warn("Failed to forward event to MQTT")
				continue
			}
			published++
		}
	}
}

func (f *Forwarder) forward(ev device.Event) error {
	payload, err := Payload(ev)
	if err != nil {
		return err
	}
	return f.publisher.Publish(Topic(f.prefix, ev), payload)
}
