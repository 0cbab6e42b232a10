package device

import (
	"maps"
	"slices"
)

// Properties is the advertised state of a peripheral as of its latest sighting.
// A sighting replaces the whole bundle; fields are never merged.
type Properties struct {
	Address      Address
	AddressType  *AddressType
	LocalName    *string
	TxPowerLevel *int16
	RSSI         *int16

	// ManufacturerData maps a company identifier to its payload.
	ManufacturerData map[uint16][]byte
	// ServiceData maps a normalized service UUID to its payload.
	ServiceData map[string][]byte
	// Services holds normalized service UUIDs, sorted and without duplicates.
	Services []string
}

// Name returns the local name or an empty string when none was advertised
func (p *Properties) Name() string {
	if p == nil || p.LocalName == nil {
		return ""
	}
	return *p.LocalName
}

// Clone returns a deep copy. A nil receiver yields nil.
func (p *Properties) Clone() *Properties {
	if p == nil {
		return nil
	}

	c := &Properties{
		Address:          p.Address,
		AddressType:      clonePtr(p.AddressType),
		LocalName:        clonePtr(p.LocalName),
		TxPowerLevel:     clonePtr(p.TxPowerLevel),
		RSSI:             clonePtr(p.RSSI),
		ManufacturerData: cloneByteMap(p.ManufacturerData),
		ServiceData:      cloneByteMap(p.ServiceData),
		Services:         slices.Clone(p.Services),
	}
	return c
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneByteMap[K comparable](m map[K][]byte) map[K][]byte {
	if m == nil {
		return nil
	}
	c := make(map[K][]byte, len(m))
	for k, v := range m {
		c[k] = slices.Clone(v)
	}
	return c
}

// SortedManufacturerIDs returns the company identifiers in ascending order
func (p *Properties) SortedManufacturerIDs() []uint16 {
	if p == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(p.ManufacturerData))
}
