package device

import (
	"errors"
	"fmt"
	"strings"
)

// Lookup and ingestion errors
var (
	// ErrDeviceNotFound is returned when a sighting carries no usable payload
	// or a lookup targets an identity the registry does not know.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrUnsupported is returned by operations delegated to a device driver
	// that this package does not implement.
	ErrUnsupported = errors.New("not supported")

	// ErrBluetoothOff is returned when the platform adapter is powered off.
	ErrBluetoothOff = errors.New("bluetooth is turned off")

	// ErrAlreadyScanning is returned when a scan is started twice.
	ErrAlreadyScanning = errors.New("scan already in progress")

	// ErrNotScanning is returned when stopping a scan that is not running.
	ErrNotScanning = errors.New("scan is not running")
)

// AddressParseError reports a malformed device address string.
type AddressParseError struct {
	Input string
	Err   error
}

func (e *AddressParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid device address %q", e.Input)
	}
	return fmt.Sprintf("invalid device address %q: %v", e.Input, e.Err)
}

func (e *AddressParseError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, &AddressParseError{}) to match any parse failure
func (e *AddressParseError) Is(target error) bool {
	_, ok := target.(*AddressParseError)
	return ok
}

// ExternalError wraps a failure reported by the device driver.
// The wrapped error is kept unchanged so callers can still match on it.
type ExternalError struct {
	Op  string
	Err error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExternalError) Unwrap() error {
	return e.Err
}

// IsExternal reports whether err originated in the device driver
func IsExternal(err error) bool {
	var ext *ExternalError
	return errors.As(err, &ext)
}

// NormalizeError maps known go-ble error strings to sentinel errors.
// It ensures consistent handling even if the upstream library changes messages slightly.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "device not found"):
		return fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	case containsIgnoreCase(msg, "not supported"):
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	default:
		return err
	}
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
