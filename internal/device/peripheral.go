package device

import (
	"context"
	"fmt"
)

// Peripheral is a registry record. Values handed out by the registry are
// snapshots: changing one never affects the stored record.
type Peripheral struct {
	ID PeripheralID
	// Properties is nil until the first sighting with a payload.
	Properties *Properties
}

// NewPeripheral creates a record with no properties
func NewPeripheral(id PeripheralID) Peripheral {
	return Peripheral{ID: id}
}

// Address returns the device address
func (p Peripheral) Address() Address {
	return p.ID.Address
}

// Name returns the advertised local name, or the address when there is none
func (p Peripheral) Name() string {
	if name := p.Properties.Name(); name != "" {
		return name
	}
	return p.ID.String()
}

// Clone returns a deep copy of the record
func (p Peripheral) Clone() Peripheral {
	return Peripheral{ID: p.ID, Properties: p.Properties.Clone()}
}

func (p Peripheral) unsupported(op string) error {
	return fmt.Errorf("%s %s: %w", op, p.ID, ErrUnsupported)
}

// Connect is delegated to the device driver and not implemented here.
func (p Peripheral) Connect(_ context.Context) error { return p.unsupported("connect") }

func (p Peripheral) Disconnect(_ context.Context) error { return p.unsupported("disconnect") }

func (p Peripheral) DiscoverServices(_ context.Context) error {
	return p.unsupported("discover services")
}

func (p Peripheral) Read(_ context.Context, _ string) ([]byte, error) {
	return nil, p.unsupported("read")
}

func (p Peripheral) Write(_ context.Context, _ string, _ []byte, _ bool) error {
	return p.unsupported("write")
}

func (p Peripheral) Subscribe(_ context.Context, _ string) error {
	return p.unsupported("subscribe")
}

func (p Peripheral) Unsubscribe(_ context.Context, _ string) error {
	return p.unsupported("unsubscribe")
}
