package commands

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/deva-protocol/deva-go/pkg/log"
	"github.com/deva-protocol/deva-go/pkg/wire"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	PacketsByOpcode   map[wire.Opcode]int
	DropsByReason     map[log.DropReason]int
	Interfaces        map[string]*InterfaceStats
	Nodes             map[wire.EUI64]*NodeStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// InterfaceStats holds statistics for a single radio interface.
type InterfaceStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	PacketsIn  int
	PacketsOut int
}

// NodeStats tracks a remote node heard announcing itself.
type NodeStats struct {
	Announcements int
	LastBoot      uint32
	LastUptime    uint32
	LastSeen      time.Time
}

func newStats() *Stats {
	return &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		PacketsByOpcode:   make(map[wire.Opcode]int),
		DropsByReason:     make(map[log.DropReason]int),
		Interfaces:        make(map[string]*InterfaceStats),
		Nodes:             make(map[wire.EUI64]*NodeStats),
	}
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	if event.Interface != "" {
		is, ok := s.Interfaces[event.Interface]
		if !ok {
			is = &InterfaceStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
			s.Interfaces[event.Interface] = is
		}
		is.Events++
		if event.Timestamp.After(is.LastSeen) {
			is.LastSeen = event.Timestamp
		}
		if event.Packet != nil {
			if event.Direction == log.DirectionIn {
				is.PacketsIn++
			} else {
				is.PacketsOut++
			}
		}
	}

	if p := event.Packet; p != nil {
		s.PacketsByOpcode[p.Opcode]++
		if a := p.Announcement; a != nil && event.Direction == log.DirectionIn {
			ns, ok := s.Nodes[a.GUID]
			if !ok {
				ns = &NodeStats{}
				s.Nodes[a.GUID] = ns
			}
			ns.Announcements++
			ns.LastBoot = a.BootNumber
			ns.LastUptime = a.Uptime
			ns.LastSeen = event.Timestamp
		}
	}

	if event.Drop != nil {
		s.DropsByReason[event.Drop.Reason]++
	}
	if event.Error != nil {
		s.Errors++
	}
}

// RunStats prints a summary of the selected events of path.
func RunStats(path string, f log.Filter, w io.Writer) error {
	r, err := open(path, f)
	if err != nil {
		return err
	}
	defer r.Close()

	stats := newStats()
	for event, err := range r.All() {
		if err != nil {
			return err
		}
		stats.add(event)
	}
	stats.print(w)
	return nil
}

// enum is one of the uint8 name types of package log or wire.
type enum interface {
	~uint8
	fmt.Stringer
}

// printCounts writes the non-zero counts of m in value order.
func printCounts[K enum](w io.Writer, title string, m map[K]int) {
	if len(m) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, k := range slices.Sorted(maps.Keys(m)) {
		if m[k] > 0 {
			fmt.Fprintf(w, "  %-16s %d\n", k.String()+":", m[k])
		}
	}
}

func (s *Stats) print(w io.Writer) {
	fmt.Fprintln(w, "=== DEVA Protocol Log Statistics ===")
	if s.TotalEvents > 0 {
		fmt.Fprintf(w, "\nTime Range: %s to %s\n", s.TimeRange.Start.Format(time.RFC3339), s.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", s.TimeRange.End.Sub(s.TimeRange.Start).Round(time.Second))
	}
	fmt.Fprintf(w, "\nTotal Events: %d\n", s.TotalEvents)

	printCounts(w, "Events by Layer", s.EventsByLayer)
	printCounts(w, "Events by Category", s.EventsByCategory)
	printCounts(w, "Events by Direction", s.EventsByDirection)
	printCounts(w, "Packets by Opcode", s.PacketsByOpcode)
	printCounts(w, "Drops by Reason", s.DropsByReason)

	fmt.Fprintf(w, "\nInterfaces: %d\n", len(s.Interfaces))
	for _, name := range slices.Sorted(maps.Keys(s.Interfaces)) {
		is := s.Interfaces[name]
		fmt.Fprintf(w, "  [%s] %d events, %d in, %d out, duration %s\n",
			name, is.Events, is.PacketsIn, is.PacketsOut, is.LastSeen.Sub(is.FirstSeen).Round(time.Millisecond))
	}

	if len(s.Nodes) > 0 {
		fmt.Fprintf(w, "\nNodes Heard: %d\n", len(s.Nodes))
		guids := slices.SortedFunc(maps.Keys(s.Nodes), func(a, b wire.EUI64) int {
			return bytes.Compare(a[:], b[:])
		})
		for _, g := range guids {
			ns := s.Nodes[g]
			fmt.Fprintf(w, "  %s %d announcements, boot %d, uptime %ds\n", g, ns.Announcements, ns.LastBoot, ns.LastUptime)
		}
	}

	if s.Errors > 0 {
		fmt.Fprintf(w, "\nErrors: %d\n", s.Errors)
	}
}
