package device

import (
	"fmt"
	"time"
)

// EventKind tags an Event
type EventKind int

const (
	EventDeviceDiscovered EventKind = iota
	EventDeviceUpdated
	EventDeviceConnected
	EventDeviceDisconnected
	EventDeviceLost
	EventManufacturerData
	EventServiceData
	EventServices
)

var eventKindNames = map[EventKind]string{
	EventDeviceDiscovered:   "device_discovered",
	EventDeviceUpdated:      "device_updated",
	EventDeviceConnected:    "device_connected",
	EventDeviceDisconnected: "device_disconnected",
	EventDeviceLost:         "device_lost",
	EventManufacturerData:   "manufacturer_data",
	EventServiceData:        "service_data",
	EventServices:           "services",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// IsAdvertisement reports whether the kind carries advertisement payload
func (k EventKind) IsAdvertisement() bool {
	return k == EventManufacturerData || k == EventServiceData || k == EventServices
}

// Event describes a change in the set of known peripherals.
// Only the payload field matching Kind is populated. Events are shared
// between subscribers and must be treated as read-only.
type Event struct {
	Kind      EventKind
	ID        PeripheralID
	Timestamp time.Time

	ManufacturerData map[uint16][]byte
	ServiceData      map[string][]byte
	Services         []string
}

func (e Event) String() string {
	return fmt.Sprintf("%s(%s)", e.Kind, e.ID)
}

func newEvent(kind EventKind, id PeripheralID) Event {
	return Event{Kind: kind, ID: id, Timestamp: time.Now()}
}

// DeviceDiscovered is emitted the first time an identity is sighted
func DeviceDiscovered(id PeripheralID) Event { return newEvent(EventDeviceDiscovered, id) }

// DeviceUpdated is emitted on every later sighting of a known identity
func DeviceUpdated(id PeripheralID) Event { return newEvent(EventDeviceUpdated, id) }

func DeviceConnected(id PeripheralID) Event    { return newEvent(EventDeviceConnected, id) }
func DeviceDisconnected(id PeripheralID) Event { return newEvent(EventDeviceDisconnected, id) }
func DeviceLost(id PeripheralID) Event         { return newEvent(EventDeviceLost, id) }

// ManufacturerDataAdvertisement carries a copy of the manufacturer data map
func ManufacturerDataAdvertisement(id PeripheralID, data map[uint16][]byte) Event {
	ev := newEvent(EventManufacturerData, id)
	ev.ManufacturerData = cloneByteMap(data)
	if ev.ManufacturerData == nil {
		ev.ManufacturerData = map[uint16][]byte{}
	}
	return ev
}

// ServiceDataAdvertisement carries a copy of the service data map
func ServiceDataAdvertisement(id PeripheralID, data map[string][]byte) Event {
	ev := newEvent(EventServiceData, id)
	ev.ServiceData = cloneByteMap(data)
	if ev.ServiceData == nil {
		ev.ServiceData = map[string][]byte{}
	}
	return ev
}

// ServicesAdvertisement carries a copy of the advertised service UUIDs
func ServicesAdvertisement(id PeripheralID, services []string) Event {
	ev := newEvent(EventServices, id)
	ev.Services = append([]string{}, services...)
	return ev
}

// SightingEvents derives the events for one accepted sighting: Discovered or
// Updated, followed by the manufacturer data, service data and services
// advertisements, in that order.
func SightingEvents(id PeripheralID, props *Properties, isNew bool) []Event {
	first := DeviceUpdated(id)
	if isNew {
		first = DeviceDiscovered(id)
	}
	if props == nil {
		props = &Properties{}
	}

	return []Event{
		first,
		ManufacturerDataAdvertisement(id, props.ManufacturerData),
		ServiceDataAdvertisement(id, props.ServiceData),
		ServicesAdvertisement(id, props.Services),
	}
}
