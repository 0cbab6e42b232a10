package device

import (
	"math"
	"slices"

	"github.com/go-ble/ble"
	"github.com/srg/blecentral/internal/bledb"
)

// Advertisement is the decoded advertising payload a driver attaches to a sighting.
// Optional scalars are nil when the radio did not report them.
type Advertisement struct {
	AddressType      *int
	LocalName        *string
	TxPowerLevel     *int
	RSSI             *int
	ManufacturerData map[int][]byte
	ServiceData      map[string][]byte
	Services         []string
}

// Sighting is a single report from a driver that a device was seen.
// A nil Advertisement means the driver had no usable payload.
type Sighting struct {
	Address       string
	Advertisement *Advertisement
}

// Decode parses the sighting address and converts the payload into Properties.
// A malformed address is a hard failure. Unparseable service UUIDs and
// manufacturer codes outside the 16-bit range are skipped.
// Properties are nil when the sighting carries no payload.
func (s Sighting) Decode() (Address, *Properties, error) {
	addr, err := ParseAddress(s.Address)
	if err != nil {
		return Address{}, nil, err
	}
	if s.Advertisement == nil {
		return addr, nil, nil
	}
	return addr, s.Advertisement.toProperties(addr), nil
}

func (a *Advertisement) toProperties(addr Address) *Properties {
	props := &Properties{
		Address:          addr,
		LocalName:        clonePtr(a.LocalName),
		TxPowerLevel:     narrowInt16(a.TxPowerLevel),
		RSSI:             narrowInt16(a.RSSI),
		ManufacturerData: make(map[uint16][]byte, len(a.ManufacturerData)),
		ServiceData:      make(map[string][]byte, len(a.ServiceData)),
		Services:         make([]string, 0, len(a.Services)),
	}
	if a.AddressType != nil {
		props.AddressType = AddressTypeFromCode(*a.AddressType)
	}

	for code, data := range a.ManufacturerData {
		if code < 0 || code > math.MaxUint16 {
			continue
		}
		props.ManufacturerData[uint16(code)] = slices.Clone(data)
	}

	for raw, data := range a.ServiceData {
		if uuid, ok := parseServiceUUID(raw); ok {
			props.ServiceData[uuid] = slices.Clone(data)
		}
	}

	for _, raw := range a.Services {
		if uuid, ok := parseServiceUUID(raw); ok {
			props.Services = append(props.Services, uuid)
		}
	}
	slices.Sort(props.Services)
	props.Services = slices.Compact(props.Services)

	return props
}

// parseServiceUUID normalizes a UUID string and checks that it is a valid
// 16, 32 or 128-bit Bluetooth UUID.
func parseServiceUUID(raw string) (string, bool) {
	normalized := bledb.NormalizeUUID(raw)
	if normalized == "" {
		return "", false
	}
	if _, err := ble.Parse(normalized); err != nil {
		return "", false
	}
	return normalized, true
}

func narrowInt16(v *int) *int16 {
	if v == nil {
		return nil
	}
	n := *v
	switch {
	case n > math.MaxInt16:
		n = math.MaxInt16
	case n < math.MinInt16:
		n = math.MinInt16
	}
	r := int16(n)
	return &r
}
