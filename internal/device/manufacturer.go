package device

// companyNames maps Bluetooth SIG company identifiers seen most often in
// advertisements to a display name.
var companyNames = map[uint16]string{
	0x0006: "Microsoft",
	0x004C: "Apple",
	0x0059: "Nordic Semiconductor",
	0x0075: "Samsung",
	0x0087: "Garmin",
	0x00E0: "Google",
	0x0157: "Huami",
	0x02E5: "Espressif",
	0x038F: "Xiaomi",
	0xFFFF: "Test",
}

// CompanyName returns the display name of a manufacturer data company identifier
func CompanyName(id uint16) (string, bool) {
	name, ok := companyNames[id]
	return name, ok
}
