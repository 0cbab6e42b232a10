package goble

import (
	"encoding/binary"

	"github.com/go-ble/ble"
	"github.com/srg/blecentral/internal/device"
)

// txPowerUnavailable is what go-ble reports when no TX power was advertised
const txPowerUnavailable = 127

// Advertisement is the part of ble.Advertisement the driver reads.
type Advertisement interface {
	LocalName() string
	ManufacturerData() []byte
	ServiceData() []ble.ServiceData
	Services() []ble.UUID
	TxPowerLevel() int
	RSSI() int
	Addr() ble.Addr
}

// ToSighting converts an advertisement into a sighting for the event bridge.
// Manufacturer data is split into its little-endian company identifier and
// the remaining payload.
func ToSighting(adv Advertisement) device.Sighting {
	payload := &device.Advertisement{
		ManufacturerData: make(map[int][]byte),
		ServiceData:      make(map[string][]byte),
	}

	if name := adv.LocalName(); name != "" {
		payload.LocalName = &name
	}

	rssi := adv.RSSI()
	payload.RSSI = &rssi

	if tx := adv.TxPowerLevel(); tx != txPowerUnavailable {
		payload.TxPowerLevel = &tx
	}

	if md := adv.ManufacturerData(); len(md) >= 2 {
		companyID := int(binary.LittleEndian.Uint16(md[:2]))
		payload.ManufacturerData[companyID] = md[2:]
	}

	for _, sd := range adv.ServiceData() {
		payload.ServiceData[sd.UUID.String()] = sd.Data
	}

	for _, svc := range adv.Services() {
		payload.Services = append(payload.Services, svc.String())
	}

	var addr string
	if a := adv.Addr(); a != nil {
		addr = a.String()
	}

	return device.Sighting{Address: addr, Advertisement: payload}
}
