package device

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Address is a 48-bit Bluetooth device address, most significant byte first.
type Address [6]byte

// AddressType tells whether an address is a public or a random one
type AddressType int

const (
	AddressPublic AddressType = iota
	AddressRandom
)

func (t AddressType) String() string {
	switch t {
	case AddressPublic:
		return "public"
	case AddressRandom:
		return "random"
	default:
		return fmt.Sprintf("AddressType(%d)", int(t))
	}
}

// AddressTypeFromCode decodes the driver's integer code. Unknown codes yield nil.
func AddressTypeFromCode(code int) *AddressType {
	var t AddressType
	switch code {
	case 0:
		t = AddressPublic
	case 1:
		t = AddressRandom
	default:
		return nil
	}
	return &t
}

var errAddressFormat = errors.New("expected six hex octets separated by ':' or '-'")

// ParseAddress parses "AA:BB:CC:DD:EE:FF" or "AA-BB-CC-DD-EE-FF" (any case).
func ParseAddress(s string) (Address, error) {
	var addr Address

	if len(s) != 17 {
		return addr, &AddressParseError{Input: s, Err: errAddressFormat}
	}
	sep := s[2]
	if sep != ':' && sep != '-' {
		return addr, &AddressParseError{Input: s, Err: errAddressFormat}
	}

	for i := 0; i < 6; i++ {
		off := i * 3
		if i > 0 && s[off-1] != sep {
			return addr, &AddressParseError{Input: s, Err: errAddressFormat}
		}
		if _, err := hex.Decode(addr[i:i+1], []byte(s[off:off+2])); err != nil {
			return Address{}, &AddressParseError{Input: s, Err: err}
		}
	}
	return addr, nil
}

// MustParseAddress is like ParseAddress but panics on malformed input.
// Intended for constants and tests.
func MustParseAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// String renders the address in upper-case colon notation
func (a Address) String() string {
	return strings.ToUpper(fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5]))
}

// IsZero reports whether the address is all zeroes
func (a Address) IsZero() bool {
	return a == Address{}
}

// Uint64 packs the address into the low 48 bits of an integer
func (a Address) Uint64() uint64 {
	var v uint64
	for _, b := range a {
		v = v<<8 | uint64(b)
	}
	return v
}

// PeripheralID identifies a peripheral in the registry.
type PeripheralID struct {
	Address Address
}

// NewPeripheralID wraps an address
func NewPeripheralID(addr Address) PeripheralID {
	return PeripheralID{Address: addr}
}

// ParsePeripheralID parses an address string into an identity
func ParsePeripheralID(s string) (PeripheralID, error) {
	addr, err := ParseAddress(s)
	if err != nil {
		return PeripheralID{}, err
	}
	return PeripheralID{Address: addr}, nil
}

func (id PeripheralID) String() string {
	return id.Address.String()
}

// Key returns a hashable form of the identity, unique per address
func (id PeripheralID) Key() uint64 {
	return id.Address.Uint64()
}
