package krishichat

import (
	"bytes"
	"strings"
)

// frameDecoder turns an incrementally delivered byte stream into discrete
// StreamEvents. It may be fed arbitrarily sized chunks; partial lines and a
// pending event: line are retained across calls, so the decoded sequence is
// independent of chunk boundaries.
type frameDecoder struct {
	buf     []byte
	pending string
	armed   bool
}

func newFrameDecoder() *frameDecoder {
	return &frameDecoder{}
}

// Feed appends p to the internal buffer and returns every event that is
// fully derivable from the bytes seen so far. Malformed pairs are dropped.
func (d *frameDecoder) Feed(p []byte) []StreamEvent {
	d.buf = append(d.buf, p...)

	var events []StreamEvent
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			return events
		}
		line := string(d.buf[:idx])
		d.buf = d.buf[idx+1:]

		if event, ok := d.consumeLine(line); ok {
			events = append(events, event)
		}
	}
}

// consumeLine advances the decoder by one complete line.
//
// An event: line arms the decoder; the very next line must be its data:
// companion or the pair is discarded. Anything else between frames is
// ignored.
func (d *frameDecoder) consumeLine(line string) (StreamEvent, bool) {
	line = strings.TrimRight(line, "\r")

	if d.armed {
		d.armed = false
		name := d.pending
		d.pending = ""
		if payload, ok := strings.CutPrefix(line, "data:"); ok {
			return unmarshalStreamEvent(name, []byte(payload))
		}
		return nil, false
	}

	if name, ok := strings.CutPrefix(line, "event:"); ok {
		d.pending = strings.TrimSpace(name)
		d.armed = true
	}
	return nil, false
}
