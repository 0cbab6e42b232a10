package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/term"

	"github.com/srg/blecentral/internal/device"
)

// useColor resolves the output.color mode for w
func useColor(mode string, w io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	return isTerminal(w)
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

// sortPeripherals orders by name, then address
func sortPeripherals(list []device.Peripheral) {
	sort.Slice(list, func(i, j int) bool {
		ni, nj := list[i].Name(), list[j].Name()
		if ni != nj {
			return ni < nj
		}
		return list[i].ID.String() < list[j].ID.String()
	})
}

func displayPeripheralsTable(w io.Writer, list []device.Peripheral) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "No devices discovered")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS\tTYPE\tRSSI\tTX\tSERVICES")
	fmt.Fprintln(tw, strings.Repeat("-", 80))

	for _, p := range list {
		name := p.Name()
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		props := p.Properties
		addrType, rssi, tx, services := "-", "-", "-", ""
		if props != nil {
			if props.AddressType != nil {
				addrType = props.AddressType.String()
			}
			if props.RSSI != nil {
				rssi = fmt.Sprintf("%d dBm", *props.RSSI)
			}
			if props.TxPowerLevel != nil {
				tx = fmt.Sprintf("%d dBm", *props.TxPowerLevel)
			}
			services = strings.Join(props.Services, ",")
			if len(services) > 30 {
				services = services[:27] + "..."
			}
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", name, p.ID, addrType, rssi, tx, services)
	}

	return tw.Flush()
}

// peripheralRecord builds the JSON document for one peripheral with a stable key order
func peripheralRecord(p device.Peripheral) *orderedmap.OrderedMap[string, any] {
	rec := orderedmap.New[string, any]()
	rec.Set("address", p.ID.String())
	rec.Set("name", p.Properties.Name())

	props := p.Properties
	if props == nil {
		return rec
	}

	if props.AddressType != nil {
		rec.Set("address_type", props.AddressType.String())
	}
	if props.RSSI != nil {
		rec.Set("rssi", *props.RSSI)
	}
	if props.TxPowerLevel != nil {
		rec.Set("tx_power", *props.TxPowerLevel)
	}
	rec.Set("services", append([]string{}, props.Services...))

	md := orderedmap.New[string, string]()
	for _, id := range props.SortedManufacturerIDs() {
		md.Set(fmt.Sprintf("0x%04X", id), hex.EncodeToString(props.ManufacturerData[id]))
	}
	rec.Set("manufacturer_data", md)

	uuids := make([]string, 0, len(props.ServiceData))
	for uuid := range props.ServiceData {
		uuids = append(uuids, uuid)
	}
	sort.Strings(uuids)
	sd := orderedmap.New[string, string]()
	for _, uuid := range uuids {
		sd.Set(uuid, hex.EncodeToString(props.ServiceData[uuid]))
	}
	rec.Set("service_data", sd)

	return rec
}

func displayPeripheralsJSON(w io.Writer, list []device.Peripheral) error {
	records := make([]*orderedmap.OrderedMap[string, any], 0, len(list))
	for _, p := range list {
		records = append(records, peripheralRecord(p))
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(records)
}

// eventPrinter writes one line per event
type eventPrinter struct {
	w     io.Writer
	kinds map[device.EventKind]*color.Color
	plain *color.Color
}

func newEventPrinter(w io.Writer, colorize bool) *eventPrinter {
	kinds := map[device.EventKind]*color.Color{
		device.EventDeviceDiscovered:   color.New(color.FgGreen, color.Bold),
		device.EventDeviceUpdated:      color.New(color.FgCyan),
		device.EventDeviceConnected:    color.New(color.FgBlue),
		device.EventDeviceDisconnected: color.New(color.FgYellow),
		device.EventDeviceLost:         color.New(color.FgRed),
		device.EventManufacturerData:   color.New(color.FgMagenta),
		device.EventServiceData:        color.New(color.FgMagenta),
		device.EventServices:           color.New(color.FgMagenta),
	}
	plain := color.New(color.Reset)

	for _, c := range kinds {
		setColor(c, colorize)
	}
	setColor(plain, colorize)

	return &eventPrinter{w: w, kinds: kinds, plain: plain}
}

func setColor(c *color.Color, enabled bool) {
	if enabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
}

func (p *eventPrinter) Print(ev device.Event) error {
	c, ok := p.kinds[ev.Kind]
	if !ok {
		c = p.plain
	}
	_, err := fmt.Fprintf(p.w, "%s  %-20s %s%s\n",
		ev.Timestamp.Format(time.TimeOnly), c.Sprint(ev.Kind.String()), ev.ID, eventDetail(ev))
	return err
}

// eventDetail renders the advertisement payload of an event
func eventDetail(ev device.Event) string {
	if !ev.Kind.IsAdvertisement() {
		return ""
	}

	switch ev.Kind {
	case device.EventManufacturerData:
		ids := make([]int, 0, len(ev.ManufacturerData))
		for id := range ev.ManufacturerData {
			ids = append(ids, int(id))
		}
		sort.Ints(ids)
		parts := make([]string, 0, len(ids))
		for _, id := range ids {
			label := fmt.Sprintf("0x%04X", id)
			if name, ok := device.CompanyName(uint16(id)); ok {
				label += "[" + name + "]"
			}
			parts = append(parts, label+"="+hex.EncodeToString(ev.ManufacturerData[uint16(id)]))
		}
		return detail(parts)
	case device.EventServiceData:
		uuids := make([]string, 0, len(ev.ServiceData))
		for uuid := range ev.ServiceData {
			uuids = append(uuids, uuid)
		}
		sort.Strings(uuids)
		parts := make([]string, 0, len(uuids))
		for _, uuid := range uuids {
			parts = append(parts, uuid+"="+hex.EncodeToString(ev.ServiceData[uuid]))
		}
		return detail(parts)
	case device.EventServices:
		return detail(ev.Services)
	}
	return ""
}

func detail(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	return " " + strings.Join(parts, " ")
}
