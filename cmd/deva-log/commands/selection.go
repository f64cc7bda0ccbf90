package commands

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/deva-protocol/deva-go/pkg/log"
	"github.com/deva-protocol/deva-go/pkg/radio"
	"github.com/deva-protocol/deva-go/pkg/wire"
)

// Selection holds the event selection flags every command accepts. Empty
// fields select everything.
type Selection struct {
	Interface string
	NodeID    string
	Peer      string
	Opcode    string
	Since     string
	Until     string
	Layer     string
	Direction string
	Category  string
}

// Register adds the selection flags to fs.
func (s *Selection) Register(fs *flag.FlagSet) {
	fs.StringVar(&s.Interface, "iface", "", "Only events of this radio interface")
	fs.StringVar(&s.NodeID, "node-id", "", "Only events captured by this node EUI-64")
	fs.StringVar(&s.Peer, "peer", "", "Only traffic with this radio address, hex or broadcast")
	fs.StringVar(&s.Opcode, "opcode", "", "Only packets with this opcode (query, list-features, ...)")
	fs.StringVar(&s.Since, "since", "", "Only events at or after this RFC 3339 time")
	fs.StringVar(&s.Until, "until", "", "Only events before this RFC 3339 time")
	fs.StringVar(&s.Layer, "layer", "", "Only this layer (radio, wire, service)")
	fs.StringVar(&s.Direction, "direction", "", "Only this direction (in, out)")
	fs.StringVar(&s.Category, "category", "", "Only this category (packet, drop, state, error)")
}

// Filter converts the selection, reporting every invalid field at once.
func (s Selection) Filter() (log.Filter, error) {
	f := log.Filter{
		Interface: s.Interface,
		NodeID:    s.NodeID,
	}
	var errs error
	collect := func(name string, err error) bool {
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("-%s: %w", name, err))
			return false
		}
		return true
	}

	if s.NodeID != "" {
		eui, err := wire.ParseEUI64(s.NodeID)
		if collect("node-id", err) {
			f.NodeID = eui.String()
		}
	}
	if s.Peer != "" {
		a, err := radio.ParseAddr(s.Peer)
		if collect("peer", err) {
			f.Peer = &a
		}
	}
	if s.Opcode != "" {
		op, err := ParseOpcode(s.Opcode)
		if collect("opcode", err) {
			f.Opcode = &op
		}
	}
	if s.Since != "" {
		t, err := time.Parse(time.RFC3339, s.Since)
		if collect("since", err) {
			f.TimeStart = &t
		}
	}
	if s.Until != "" {
		t, err := time.Parse(time.RFC3339, s.Until)
		if collect("until", err) {
			f.TimeEnd = &t
		}
	}
	if s.Layer != "" {
		l, err := log.ParseLayer(s.Layer)
		if collect("layer", err) {
			f.Layer = &l
		}
	}
	if s.Direction != "" {
		d, err := log.ParseDirection(s.Direction)
		if collect("direction", err) {
			f.Direction = &d
		}
	}
	if s.Category != "" {
		c, err := log.ParseCategory(s.Category)
		if collect("category", err) {
			f.Category = &c
		}
	}
	return f, errs
}

// ParseOpcode parses an opcode name such as "query" or "list-features".
func ParseOpcode(s string) (wire.Opcode, error) {
	return wire.ParseOpcode(strings.ReplaceAll(s, "-", "_"))
}

// open returns a reader over the events of path selected by f. Path
// log.Stdin reads standard input.
func open(path string, f log.Filter) (*log.Reader, error) {
	r, err := log.NewFilteredReader(path, f)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	return r, nil
}
