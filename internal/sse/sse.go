// Package sse decodes Server-Sent Events from an HTTP response body.
package sse

import (
	"bufio"
	"io"
	"strings"
)

// Event is one decoded SSE frame.
type Event struct {
	// Name is the "event:" field, empty for unnamed events.
	Name string
	// Data joins the frame's "data:" lines with "\n".
	Data string
}

// Decoder reads events from a stream. It tolerates multi-line data fields
// and ignores id: and retry: fields, which no supported provider uses.
type Decoder struct {
	sc *bufio.Scanner
}

// NewDecoder wraps r. Lines up to 4 MB are supported; provider deltas are
// small, but a response.completed frame carries the entire output snapshot.
func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &Decoder{sc: sc}
}

// Next returns the next event, or io.EOF at end of stream.
func (d *Decoder) Next() (Event, error) {
	var ev Event
	var data []string

	for d.sc.Scan() {
		line := d.sc.Text()
		if line == "" {
			if ev.Name != "" || len(data) > 0 {
				ev.Data = strings.Join(data, "\n")
				return ev, nil
			}
			continue
		}
		switch {
		case strings.HasPrefix(line, ":"):
			// comment / keepalive
		case strings.HasPrefix(line, "event:"):
			ev.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := d.sc.Err(); err != nil {
		return Event{}, err
	}
	if ev.Name != "" || len(data) > 0 {
		ev.Data = strings.Join(data, "\n")
		return ev, nil
	}
	return Event{}, io.EOF
}
