package device

import (
	"fmt"
	"slices"

	"github.com/srg/blecentral/internal/bledb"
)

// NormalizeUUID is re-exported from bledb for convenience.
// It converts a UUID string to the internal format (lowercase, no dashes,
// SIG base UUIDs collapsed to their 16-bit form).
func NormalizeUUID(uuid string) string {
	return bledb.NormalizeUUID(uuid)
}

// NormalizeUUIDs is re-exported from bledb for convenience.
func NormalizeUUIDs(uuids []string) []string {
	return bledb.NormalizeUUIDs(uuids)
}

// ValidateUUID validates that UUID strings are non-empty and well-formed.
// Returns normalized UUID strings or an error.
// Accepts one or more UUIDs as variadic arguments.
func ValidateUUID(uuids ...string) ([]string, error) {
	if len(uuids) == 0 {
		return nil, fmt.Errorf("at least one UUID is required")
	}

	result := make([]string, 0, len(uuids))
	for i, uuid := range uuids {
		if uuid == "" {
			return nil, fmt.Errorf("UUID at index %d cannot be empty", i)
		}
		normalized, ok := parseServiceUUID(uuid)
		if !ok {
			return nil, fmt.Errorf("invalid UUID format at index %d: %s", i, uuid)
		}
		result = append(result, normalized)
	}
	return result, nil
}

// ScanFilter restricts a scan to devices advertising at least one of Services.
// An empty filter matches every device.
type ScanFilter struct {
	Services []string
}

// NewScanFilter validates and normalizes the given service UUIDs
func NewScanFilter(services ...string) (ScanFilter, error) {
	if len(services) == 0 {
		return ScanFilter{}, nil
	}
	normalized, err := ValidateUUID(services...)
	if err != nil {
		return ScanFilter{}, err
	}
	slices.Sort(normalized)
	return ScanFilter{Services: slices.Compact(normalized)}, nil
}

// Matches reports whether any of the advertised services passes the filter
func (f ScanFilter) Matches(advertised []string) bool {
	if len(f.Services) == 0 {
		return true
	}
	for _, svc := range advertised {
		if slices.Contains(f.Services, bledb.NormalizeUUID(svc)) {
			return true
		}
	}
	return false
}
