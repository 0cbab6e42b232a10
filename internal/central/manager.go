// Package central is the event bridge between a device driver that reports
// sightings and the in-process consumers of discovery events.
//
// A Manager owns the peripheral registry and a broadcast hub. Drivers call
// ReportSighting from any goroutine; consumers call Subscribe and read the
// returned channel. One Manager is expected per adapter session and is
// passed explicitly to whoever needs it.
package central

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/broadcast"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/metrics"
	"github.com/srg/blecentral/internal/registry"
)

// Driver is the platform collaborator that actually drives the radio.
// Manager forwards scan commands to it unchanged.
type Driver interface {
	StartScan(ctx context.Context, filter device.ScanFilter) error
	StopScan(ctx context.Context) error
}

// Subscription is a live stream of events
type Subscription = broadcast.Subscription[device.Event]

// Options configures a Manager
type Options struct {
	// EventBufferSize is the per-subscriber buffer. When a subscriber falls
	// further behind, its oldest undelivered events are dropped.
	EventBufferSize int
	Metrics         *metrics.Metrics
}

// DefaultOptions returns default manager options
func DefaultOptions() *Options {
	return &Options{
		EventBufferSize: 256,
	}
}

// Manager is safe for concurrent use.
type Manager struct {
	// mu serializes registry writes with the publication of the events they
	// produce, so subscribers see every identity's events in registry order.
	mu sync.Mutex

	driver   Driver
	registry *registry.Registry
	hub      *broadcast.Hub[device.Event]
	metrics  *metrics.Metrics
	logger   *logrus.Logger
}

// NewManager creates a manager forwarding scan commands to driver.
// driver may be nil when only sightings are injected.
func NewManager(driver Driver, logger *logrus.Logger, opts *Options) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	size := opts.EventBufferSize
	if size <= 0 {
		size = DefaultOptions().EventBufferSize
	}

	return &Manager{
		driver:   driver,
		registry: registry.New(logger),
		hub:      broadcast.NewHub[device.Event](size),
		metrics:  opts.Metrics,
		logger:   logger,
	}
}

// Subscribe returns an independent stream of every event emitted from now on.
// Close the subscription when done; it is closed automatically by Manager.Close.
func (m *Manager) Subscribe() *Subscription {
	sub := m.hub.Subscribe()
	m.metrics.SetSubscribers(m.hub.Len())
	return sub
}

// PeripheralCount returns the number of known peripherals
func (m *Manager) PeripheralCount() int {
	return m.registry.Len()
}

// SubscriberCount returns the number of open subscriptions
func (m *Manager) SubscriberCount() int {
	return m.hub.Len()
}

// ReportSighting is the single ingestion point for discovery data.
//
// A malformed address fails with *device.AddressParseError. A sighting
// without payload fails with device.ErrDeviceNotFound, whether or not the
// identity is known. Neither failure changes state or emits events.
//
// Otherwise the record's properties are replaced and DeviceDiscovered (first
// sighting) or DeviceUpdated is published, followed by the manufacturer data,
// service data and services advertisements.
func (m *Manager) ReportSighting(s device.Sighting) (device.Peripheral, error) {
	addr, props, err := s.Decode()
	if err != nil {
		m.metrics.ObserveSighting(metrics.SightingInvalid)
		m.logger.WithError(err).WithField("address", s.Address).Debug("Rejected sighting")
		return device.Peripheral{}, err
	}

	id := device.NewPeripheralID(addr)
	if props == nil {
		m.metrics.ObserveSighting(metrics.SightingNotFound)
		m.logger.WithField("address", id.String()).Debug("Sighting without properties")
		return device.Peripheral{}, fmt.Errorf("sighting %s: %w", id, device.ErrDeviceNotFound)
	}

	m.mu.Lock()
	_, isNew := m.registry.InsertIfAbsent(id)
	p, err := m.registry.UpdateProperties(id, props)
	if err != nil {
		m.mu.Unlock()
		return device.Peripheral{}, err
	}
	m.publish(device.SightingEvents(id, props, isNew)...)
	count := m.registry.Len()
	m.mu.Unlock()

	if isNew {
		m.metrics.ObserveSighting(metrics.SightingDiscovered)
		m.metrics.SetPeripherals(count)
		m.logger.WithFields(logrus.Fields{
			"device":  p.Name(),
			"address": id.String(),
			"rssi":    rssiField(props),
		}).Info("Discovered new device")
	} else {
		m.metrics.ObserveSighting(metrics.SightingUpdated)
		m.logger.WithFields(logrus.Fields{
			"device": p.Name(),
			"rssi":   rssiField(props),
		}).Debug("Updated device")
	}
	return p, nil
}

func rssiField(props *device.Properties) any {
	if props.RSSI == nil {
		return nil
	}
	return *props.RSSI
}

// Peripherals returns snapshots of every known peripheral
func (m *Manager) Peripherals() []device.Peripheral {
	return m.registry.List()
}

// Peripheral returns a snapshot of the peripheral with the given identity,
// or device.ErrDeviceNotFound.
func (m *Manager) Peripheral(id device.PeripheralID) (device.Peripheral, error) {
	p, ok := m.registry.Lookup(id)
	if !ok {
		return device.Peripheral{}, fmt.Errorf("peripheral %s: %w", id, device.ErrDeviceNotFound)
	}
	return p, nil
}

// AddPeripheral registers an identity known out of band. No event is emitted.
func (m *Manager) AddPeripheral(id device.PeripheralID) device.Peripheral {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, created := m.registry.InsertIfAbsent(id)
	if created {
		m.metrics.SetPeripherals(m.registry.Len())
	}
	return p
}

// RemovePeripheral forgets a peripheral. No event is emitted; drivers that
// want to announce it emit DeviceLost themselves.
func (m *Manager) RemovePeripheral(id device.PeripheralID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.registry.Remove(id) {
		return fmt.Errorf("peripheral %s: %w", id, device.ErrDeviceNotFound)
	}
	m.metrics.SetPeripherals(m.registry.Len())
	return nil
}

// Emit publishes an event as is. Drivers use it for connection lifecycle
// events which do not touch the registry.
func (m *Manager) Emit(ev device.Event) {
	m.publish(ev)
}

func (m *Manager) publish(events ...device.Event) {
	dropped := m.hub.Publish(events...)
	for _, ev := range events {
		m.metrics.ObserveEvent(ev.Kind.String())
	}
	if dropped > 0 {
		m.metrics.AddDropped(dropped)
		m.logger.WithField("dropped", dropped).Debug("Slow subscribers lost events")
	}
}

// StartScan forwards to the driver. Driver failures are wrapped in
// *device.ExternalError.
func (m *Manager) StartScan(ctx context.Context, filter device.ScanFilter) error {
	if m.driver == nil {
		return &device.ExternalError{Op: "start scan", Err: errNoDriver}
	}

	m.logger.WithField("services", filter.Services).Info("Starting BLE scan...")
	if err := m.driver.StartScan(ctx, filter); err != nil {
		return &device.ExternalError{Op: "start scan", Err: err}
	}
	return nil
}

// StopScan forwards to the driver. Driver failures are wrapped in
// *device.ExternalError.
func (m *Manager) StopScan(ctx context.Context) error {
	if m.driver == nil {
		return &device.ExternalError{Op: "stop scan", Err: errNoDriver}
	}

	if err := m.driver.StopScan(ctx); err != nil {
		return &device.ExternalError{Op: "stop scan", Err: err}
	}
	m.logger.WithField("device_count", m.registry.Len()).Info("BLE scan stopped")
	return nil
}

var errNoDriver = errors.New("no device driver configured")

// AdapterInfo describes the driver, when it can describe itself
func (m *Manager) AdapterInfo() string {
	if info, ok := m.driver.(interface{ Info() string }); ok {
		return info.Info()
	}
	return "unknown"
}

// Close closes every subscription. The registry stays readable; later
// events are discarded.
func (m *Manager) Close() {
	m.hub.Close()
	m.metrics.SetSubscribers(0)
}
