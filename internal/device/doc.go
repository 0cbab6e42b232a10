// Package device defines the data model shared by the peripheral registry,
// the event bridge and the device drivers: Bluetooth addresses, advertised
// properties, raw sightings reported by a driver, and the events derived
// from them.
//
// Connection management and GATT traversal are delegated to the driver;
// the corresponding Peripheral methods only report ErrUnsupported.
package device
