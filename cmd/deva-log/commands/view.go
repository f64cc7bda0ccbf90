// Package commands implements the deva-log subcommands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/deva-protocol/deva-go/pkg/log"
	"github.com/deva-protocol/deva-go/pkg/wire"
)

const timeLayout = "2006-01-02T15:04:05.000000Z"

// ViewOptions controls the view command output.
type ViewOptions struct {
	// Short prints one line per event instead of a detail block.
	Short bool
}

// RunView prints the selected events of path to out.
func RunView(path string, f log.Filter, opts ViewOptions, out io.Writer) error {
	r, err := open(path, f)
	if err != nil {
		return err
	}
	defer r.Close()

	for event, err := range r.All() {
		if err != nil {
			return err
		}
		if opts.Short {
			writeLine(out, event)
		} else {
			writeBlock(out, event)
		}
	}
	return nil
}

// header renders "time [iface] DIR LAYER Label from/to peer".
func header(event log.Event) string {
	iface := event.Interface
	if iface == "" {
		iface = "-"
	}
	s := fmt.Sprintf("%s [%s] %-3s %s %s", event.Timestamp.UTC().Format(timeLayout), iface, event.Direction, event.Layer, event.Label())
	if event.Peer != 0 {
		if event.Direction == log.DirectionOut {
			s += " to " + event.Peer.String()
		} else {
			s += " from " + event.Peer.String()
		}
	}
	return s
}

func writeLine(w io.Writer, event log.Event) {
	fmt.Fprintf(w, "%s  %s\n", header(event), event.Summary())
}

func writeBlock(w io.Writer, event log.Event) {
	fmt.Fprintln(w, header(event))
	switch {
	case event.Packet != nil:
		FormatPacket(w, event.Packet)
	case event.Drop != nil:
		field(w, "Reason", event.Drop.Reason)
		if event.Drop.Detail != "" {
			field(w, "Detail", event.Drop.Detail)
		}
	case event.StateChange != nil:
		sc := event.StateChange
		field(w, "Entity", sc.Entity)
		if sc.OldState != "" {
			fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
		} else {
			fmt.Fprintf(w, "  -> %s\n", sc.NewState)
		}
		if sc.Reason != "" {
			field(w, "Reason", sc.Reason)
		}
	case event.Error != nil:
		field(w, "Layer", event.Error.Layer)
		field(w, "Message", event.Error.Message)
		if event.Error.Context != "" {
			field(w, "Context", event.Error.Context)
		}
	}
	if fr := event.Frame; fr != nil {
		fmt.Fprintf(w, "  Size: %d bytes\n", fr.Size)
		if len(fr.Data) > 0 {
			suffix := ""
			if fr.Truncated {
				suffix = " (truncated)"
			}
			fmt.Fprintf(w, "  Data: %s%s\n", hex.EncodeToString(fr.Data), suffix)
		}
	}
	fmt.Fprintln(w)
}

func field(w io.Writer, name string, v any) {
	fmt.Fprintf(w, "  %s: %v\n", name, v)
}

// FormatPacket writes the decoded fields of p, indented, to w.
func FormatPacket(w io.Writer, p *log.PacketEvent) {
	field(w, "Version", p.Version)

	if a := p.Announcement; a != nil {
		fmt.Fprintf(w, "  GUID: %s  Boot: %d  Uptime: %ds  Lifetime: %ds\n", a.GUID, a.BootNumber, a.Uptime, a.Lifetime)
		if a.BootTime != wire.BootTimeUnknown {
			field(w, "BootTime", a.BootTime)
		}
		fmt.Fprintf(w, "  Announcements: %d  FeatureHash: 0x%08X\n", a.Announcements, a.FeatureHash)
		field(w, "Application", a.Application)
		if a.PositionType != wire.PositionUnknown {
			fmt.Fprintf(w, "  Position: %s %.6f,%.6f %.2fm\n", a.PositionType,
				float64(a.Latitude)/1e6, float64(a.Longitude)/1e6, float64(a.Elevation)/100)
		}
		if a.RadioTech != wire.RadioTechUnknown {
			fmt.Fprintf(w, "  Radio: %s channel %d\n", a.RadioTech, a.RadioChannel)
		}
	}

	if d := p.Description; d != nil {
		fmt.Fprintf(w, "  GUID: %s  Boot: %d\n", d.GUID, d.BootNumber)
		fmt.Fprintf(w, "  Platform: %s v%s\n", d.Platform, d.PlatformVersion)
		field(w, "Manufacturer", d.Manufacturer)
		fmt.Fprintf(w, "  Firmware: %s (built %d)\n", d.FirmwareVersion, d.IdentTimestamp)
	}

	switch {
	case p.FeatureTotal != nil && p.FeatureCount != nil:
		var offset uint8
		if p.FeatureOffset != nil {
			offset = *p.FeatureOffset
		}
		fmt.Fprintf(w, "  Features: %d of %d from offset %d\n", *p.FeatureCount, *p.FeatureTotal, offset)
	case p.FeatureOffset != nil:
		field(w, "Offset", *p.FeatureOffset)
	}
}
