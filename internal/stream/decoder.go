// ABOUTME: Incremental decoder turning raw chat stream bytes into typed events
// ABOUTME: Buffers partial lines across chunks and drops malformed or unknown payloads

package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
)

// dataPrefix marks the only significant lines in the stream.
const dataPrefix = "data: "

// readChunkSize is how many bytes Read pulls from the body per call.
const readChunkSize = 4 << 10

// Kind is the payload type discriminator.
type Kind string

const (
	KindContent   Kind = "content"
	KindToolStart Kind = "tool_start"
	KindToolEnd   Kind = "tool_end"
	KindError     Kind = "error"
)

// Event is one decoded server event.
type Event struct {
	Kind Kind
	// Content is the delta for KindContent and the notice text for KindError.
	Content string
	// Tool names the tool for KindToolStart and KindToolEnd.
	Tool string
}

// payload is the JSON shape of a data line.
type payload struct {
	Type    string  `json:"type"`
	Content *string `json:"content"`
	Tool    *string `json:"tool"`
}

// Decoder converts arriving byte chunks into events. A Decoder holds the
// unterminated tail of the stream and must not be reused across requests.
type Decoder struct {
	buf     []byte
	dropped int
}

// NewDecoder returns an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends a chunk and returns the events of every line it completed,
// in source order. Chunk boundaries need not align with lines.
func (d *Decoder) Feed(chunk []byte) []Event {
	d.buf = append(d.buf, chunk...)

	var events []Event
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		if ev, ok := d.decodeLine(d.buf[:i]); ok {
			events = append(events, ev)
		}
		d.buf = d.buf[i+1:]
	}

	// Release the consumed prefix once nothing is pending
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return events
}

// Flush decodes whatever unterminated line remains at end of input.
func (d *Decoder) Flush() []Event {
	if len(d.buf) == 0 {
		return nil
	}
	line := d.buf
	d.buf = nil
	if ev, ok := d.decodeLine(line); ok {
		return []Event{ev}
	}
	return nil
}

// Dropped reports how many data lines were discarded as malformed or unknown.
func (d *Decoder) Dropped() int {
	return d.dropped
}

func (d *Decoder) decodeLine(line []byte) (Event, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return Event{}, false
	}

	ev, ok := ParsePayload(line[len(dataPrefix):])
	if !ok {
		d.dropped++
	}
	return ev, ok
}

// ParsePayload decodes the JSON after a data prefix. It reports false for
// invalid JSON, unknown types, and payloads missing their type's field.
func ParsePayload(data []byte) (Event, bool) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Event{}, false
	}

	switch Kind(p.Type) {
	case KindContent, KindError:
		if p.Content == nil {
			return Event{}, false
		}
		return Event{Kind: Kind(p.Type), Content: *p.Content}, true
	case KindToolStart, KindToolEnd:
		if p.Tool == nil {
			return Event{}, false
		}
		return Event{Kind: Kind(p.Type), Tool: *p.Tool}, true
	default:
		return Event{}, false
	}
}

// ErrStopped is returned by Read when the callback asked to stop.
var ErrStopped = errors.New("stream stopped by consumer")

// Read decodes r with a fresh Decoder. See Decoder.Read.
func Read(ctx context.Context, r io.Reader, fn func(Event) bool) error {
	return NewDecoder().Read(ctx, r, fn)
}

// Read pulls chunks from r and calls fn for each event in order. It returns
// nil once r reports io.EOF and the tail is flushed, ErrStopped if fn returns
// false, or the read error otherwise. Dropped counts the discarded lines
// afterwards.
func (d *Decoder) Read(ctx context.Context, r io.Reader, fn func(Event) bool) error {
	buf := make([]byte, readChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.Read(buf)
		if n > 0 {
			for _, ev := range d.Feed(buf[:n]) {
				if !fn(ev) {
					return ErrStopped
				}
			}
		}

		if errors.Is(err, io.EOF) {
			for _, ev := range d.Flush() {
				if !fn(ev) {
					return ErrStopped
				}
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}
