// Package registry holds the canonical set of known peripherals.
package registry

import (
	"fmt"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/device"
)

// Registry maps peripheral identities to records, keyed by PeripheralID.Key.
//
// Reads go straight to a lock-free hashmap. Writes are serialized by mu and
// always store a fresh record, so a reader never observes a partially
// written one. Every record returned to a caller is a deep copy.
type Registry struct {
	mu      sync.Mutex
	records *hashmap.Map[uint64, device.Peripheral]
	logger  *logrus.Logger
}

// New creates an empty registry
func New(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		records: hashmap.New[uint64, device.Peripheral](),
		logger:  logger,
	}
}

// Lookup returns a snapshot of the record for id
func (r *Registry) Lookup(id device.PeripheralID) (device.Peripheral, bool) {
	p, ok := r.records.Get(id.Key())
	if !ok {
		return device.Peripheral{}, false
	}
	return p.Clone(), true
}

// List returns snapshots of all records in no particular order
func (r *Registry) List() []device.Peripheral {
	out := make([]device.Peripheral, 0, r.records.Len())
	r.records.Range(func(_ uint64, p device.Peripheral) bool {
		out = append(out, p.Clone())
		return true
	})
	return out
}

// Len returns the number of known peripherals
func (r *Registry) Len() int {
	return r.records.Len()
}

// InsertIfAbsent creates a record with empty properties unless one exists.
// It returns the stored record and whether it was created by this call.
func (r *Registry) InsertIfAbsent(id device.PeripheralID) (device.Peripheral, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.records.Get(id.Key()); ok {
		return p.Clone(), false
	}

	p := device.NewPeripheral(id)
	r.records.Set(id.Key(), p)
	r.logger.WithField("address", id.String()).Debug("Registered peripheral")
	return p.Clone(), true
}

// UpdateProperties replaces the property bundle of a known record.
// Returns device.ErrDeviceNotFound if id is not registered.
func (r *Registry) UpdateProperties(id device.PeripheralID, props *device.Properties) (device.Peripheral, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records.Get(id.Key()); !ok {
		return device.Peripheral{}, fmt.Errorf("update %s: %w", id, device.ErrDeviceNotFound)
	}

	p := device.Peripheral{ID: id, Properties: props.Clone()}
	r.records.Set(id.Key(), p)
	return p.Clone(), nil
}

// Remove deletes the record for id and reports whether it existed
func (r *Registry) Remove(id device.PeripheralID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := r.records.Del(id.Key())
	if removed {
		r.logger.WithField("address", id.String()).Debug("Removed peripheral")
	}
	return removed
}
