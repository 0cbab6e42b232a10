package main

import (
	"errors"
	"fmt"

	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/mqttbridge"
)

// FormatUserError turns internal errors into messages for the terminal
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var parseErr *device.AddressParseError
	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off. Enable Bluetooth and try again."
	case errors.Is(err, device.ErrUnsupported):
		return fmt.Sprintf("operation not supported on this platform (%v)", err)
	case errors.Is(err, device.ErrAlreadyScanning):
		return "a scan is already running"
	case errors.Is(err, mqttbridge.ErrConnectionFailed):
		return fmt.Sprintf("could not reach MQTT broker: %v", err)
	case errors.As(err, &parseErr):
		return fmt.Sprintf("invalid Bluetooth address %q: expected AA:BB:CC:DD:EE:FF", parseErr.Input)
	}

	var extErr *device.ExternalError
	if errors.As(err, &extErr) {
		return fmt.Sprintf("Bluetooth adapter failed to %s: %v", extErr.Op, extErr.Err)
	}

	return err.Error()
}
