// Package stream decodes the newline-delimited event protocol spoken by the
// agent backend into typed events.
package stream

import (
	"bytes"
	"errors"
	"strings"

	"github.com/scribe-ide/scribe/internal/logging"
	"github.com/scribe-ide/scribe/pkg/types"
)

// Decoder turns raw stream chunks into typed events. Frames are
// newline-delimited JSON envelopes; a partial trailing frame is retained and
// prefixed to the next chunk. The zero value is ready to use.
//
// Malformed frames are dropped with a diagnostic; frames that parse as an
// envelope but fail payload validation surface as error events so they are
// never silently swallowed. Unknown envelope types are ignored.
type Decoder struct {
	buf bytes.Buffer
}

// Feed consumes a chunk and returns the complete events it contained.
func (d *Decoder) Feed(chunk []byte) []types.Event {
	d.buf.Write(chunk)

	data := d.buf.Bytes()
	last := bytes.LastIndexByte(data, '\n')
	if last < 0 {
		return nil
	}

	frames := data[:last]
	rest := append([]byte(nil), data[last+1:]...)
	d.buf.Reset()
	d.buf.Write(rest)

	var events []types.Event
	for _, frame := range bytes.Split(frames, []byte{'\n'}) {
		frame = bytes.TrimSpace(frame)
		if len(frame) == 0 {
			continue
		}
		if ev, ok := d.decodeFrame(frame); ok {
			events = append(events, ev)
		}
	}
	return events
}

// Flush decodes whatever is left in the buffer as a final frame. Called when
// the stream ends without a trailing newline.
func (d *Decoder) Flush() []types.Event {
	frame := bytes.TrimSpace(d.buf.Bytes())
	d.buf.Reset()
	if len(frame) == 0 {
		return nil
	}
	if ev, ok := d.decodeFrame(frame); ok {
		return []types.Event{ev}
	}
	return nil
}

// Pending returns the number of buffered bytes awaiting a frame terminator.
func (d *Decoder) Pending() int {
	return d.buf.Len()
}

func (d *Decoder) decodeFrame(frame []byte) (types.Event, bool) {
	ev, err := types.UnmarshalEvent(frame)
	if err == nil {
		return ev, true
	}

	var unknown *types.ErrUnknownEventKind
	if errors.As(err, &unknown) {
		logging.Debug().
			Str("component", "decoder").
			Str("eventType", unknown.Type).
			Msg("ignoring unknown event type")
		return nil, false
	}

	var invalid *types.ValidationError
	if errors.As(err, &invalid) {
		logging.Warn().
			Str("component", "decoder").
			Str("eventType", invalid.EventType).
			Str("reason", invalid.Reason).
			Msg("event failed payload validation")
		return types.ErrorEvent{Message: "malformed " + invalid.EventType + " event"}, true
	}

	// Not parseable as an envelope at all. Drop and keep the stream flowing.
	logging.Warn().
		Str("component", "decoder").
		Str("frame", truncate(string(frame), 120)).
		Err(err).
		Msg("dropping unparseable frame")
	return nil, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "") + "..."
}
