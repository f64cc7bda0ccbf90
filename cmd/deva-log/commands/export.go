package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"go.uber.org/multierr"

	"github.com/deva-protocol/deva-go/pkg/log"
)

// Export formats.
const (
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
)

var csvHeader = []string{"timestamp", "iface", "direction", "layer", "category", "node_id", "peer", "type", "version", "detail"}

// RunExport converts the selected events of path to format and writes
// them to output, or to stdout when output is empty.
func RunExport(path string, f log.Filter, format, output string) (err error) {
	var write func(io.Writer, *log.Reader) error
	switch format {
	case FormatJSONL:
		write = writeJSONL
	case FormatCSV:
		write = writeCSV
	default:
		return fmt.Errorf("unknown format %q (jsonl or csv)", format)
	}

	r, err := open(path, f)
	if err != nil {
		return err
	}
	defer r.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		out, cerr := os.Create(output)
		if cerr != nil {
			return cerr
		}
		defer func() { err = multierr.Append(err, out.Close()) }()
		w = out
	}
	return write(w, r)
}

func writeJSONL(w io.Writer, r *log.Reader) error {
	enc := json.NewEncoder(w)
	for event, err := range r.All() {
		if err != nil {
			return err
		}
		if err := enc.Encode(event); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(w io.Writer, r *log.Reader) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for event, err := range r.All() {
		if err != nil {
			return err
		}
		if err := cw.Write(csvRecord(event)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRecord(event log.Event) []string {
	var version, peer, detail string
	if event.Packet != nil {
		version = strconv.Itoa(int(event.Packet.Version))
		if a := event.Packet.Announcement; a != nil {
			detail = a.GUID.String()
		} else if d := event.Packet.Description; d != nil {
			detail = d.GUID.String()
		}
	} else {
		detail = event.Summary()
	}
	if event.Peer != 0 {
		peer = event.Peer.String()
	}
	return []string{
		event.Timestamp.UTC().Format(timeLayout),
		event.Interface,
		event.Direction.String(),
		event.Layer.String(),
		event.Category.String(),
		event.NodeID,
		peer,
		event.Label(),
		version,
		detail,
	}
}
