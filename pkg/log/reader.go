package log

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/deva-protocol/deva-go/pkg/radio"
	"github.com/deva-protocol/deva-go/pkg/wire"
)

// Filter selects events. Nil and empty fields match everything; the time
// range is half open, [TimeStart, TimeEnd).
type Filter struct {
	Interface string
	NodeID    string
	Direction *Direction
	Layer     *Layer
	Category  *Category
	Peer      *radio.Addr
	TimeStart *time.Time
	TimeEnd   *time.Time

	// Opcode never matches events without a decoded packet.
	Opcode *wire.Opcode
}

// is reports whether an optional criterion accepts got.
func is[T comparable](want *T, got T) bool {
	return want == nil || *want == got
}

func (f *Filter) matches(e Event) bool {
	return (f.Interface == "" || e.Interface == f.Interface) &&
		(f.NodeID == "" || e.NodeID == f.NodeID) &&
		is(f.Direction, e.Direction) &&
		is(f.Layer, e.Layer) &&
		is(f.Category, e.Category) &&
		is(f.Peer, e.Peer) &&
		(f.TimeStart == nil || !e.Timestamp.Before(*f.TimeStart)) &&
		(f.TimeEnd == nil || e.Timestamp.Before(*f.TimeEnd)) &&
		(f.Opcode == nil || e.Packet != nil && e.Packet.Opcode == *f.Opcode)
}

// Stdin is the path that makes NewFilteredReader read from standard input.
const Stdin = "-"

// Reader streams events from a .dlog capture, skipping those the filter
// rejects.
type Reader struct {
	decoder *cbor.Decoder
	closer  io.Closer
	filter  Filter
	read    int
}

// NewReader opens path and reads every event in it.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens path and reads the events matching filter.
// Stdin reads standard input, which Close leaves open.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	if path == Stdin {
		return NewStreamReader(os.Stdin, filter), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := NewStreamReader(f, filter)
	r.closer = f
	return r, nil
}

// NewStreamReader reads the events matching filter from src. Closing the
// Reader does not close src.
func NewStreamReader(src io.Reader, filter Filter) *Reader {
	return &Reader{
		decoder: NewDecoder(src),
		filter:  filter,
	}
}

// Next returns the next matching event, or io.EOF at the end of the
// capture. A record cut short by a crash mid-write ends the capture
// with io.ErrUnexpectedEOF.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.decoder.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, fmt.Errorf("event %d: %w", r.read+1, err)
		}
		r.read++
		if r.filter.matches(event) {
			return event, nil
		}
	}
}

// Decoded returns the number of records decoded so far, matching or not.
func (r *Reader) Decoded() int {
	return r.read
}

// All iterates over the remaining matching events. Iteration stops after
// the first error, which is yielded with a zero Event.
func (r *Reader) All() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			event, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(event, err) || err != nil {
				return
			}
		}
	}
}

// Close closes the file opened by NewFilteredReader.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
