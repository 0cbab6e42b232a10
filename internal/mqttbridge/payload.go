package mqttbridge

import (
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/srg/blecentral/internal/device"
)

// eventPayload is the JSON document published for an event.
// Binary payloads are hex encoded, manufacturer data is keyed by the
// decimal company identifier.
type eventPayload struct {
	Kind             string            `json:"kind"`
	Address          string            `json:"address"`
	Timestamp        string            `json:"timestamp"`
	ManufacturerData map[string]string `json:"manufacturer_data,omitempty"`
	ServiceData      map[string]string `json:"service_data,omitempty"`
	Services         []string          `json:"services,omitempty"`
}

// Payload encodes an event as JSON
func Payload(ev device.Event) ([]byte, error) {
	p := eventPayload{
		Kind:      ev.Kind.String(),
		Address:   ev.ID.String(),
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339Nano),
		Services:  ev.Services,
	}

	if len(ev.ManufacturerData) > 0 {
		p.ManufacturerData = make(map[string]string, len(ev.ManufacturerData))
		for id, data := range ev.ManufacturerData {
			p.ManufacturerData[strconv.Itoa(int(id))] = hex.EncodeToString(data)
		}
	}
	if len(ev.ServiceData) > 0 {
		p.ServiceData = make(map[string]string, len(ev.ServiceData))
		for uuid, data := range ev.ServiceData {
			p.ServiceData[uuid] = hex.EncodeToString(data)
		}
	}

	return json.Marshal(p)
}

type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Timestamp string `json:"timestamp,omitempty"`
}

func buildStatusPayload(status, clientID string, ts time.Time) []byte {
	p := statusPayload{Status: status, ClientID: clientID}
	if !ts.IsZero() {
		p.Timestamp = ts.UTC().Format(time.RFC3339)
	}
	// Marshalling a struct of strings cannot fail
	b, _ := json.Marshal(p)
	return b
}
