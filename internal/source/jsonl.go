package source

import (
	"fmt"
	"io"

	"github.com/tidwall/gjson"

	"github.com/mrzor/cycletrace/internal/event"
)

// NewJSONLines returns a Reader over newline-delimited JSON events.
func NewJSONLines(r io.Reader, opts ...Option) *Reader {
	return newReader(r, "jsonl", ParseJSONLine, opts...)
}

// ParseJSONLine decodes one JSON event object. Recognised keys:
//
//	name            event name (required)
//	cpu | source    source number (required)
//	ts | timestamp  nanoseconds (required)
//	pid, comm       optional task identity
//	args            optional, kept as the event context
func ParseJSONLine(line []byte) (event.Event, error) {
	if !gjson.ValidBytes(line) {
		return event.Event{}, fmt.Errorf("invalid JSON")
	}
	root := gjson.ParseBytes(line)
	if !root.IsObject() {
		return event.Event{}, fmt.Errorf("expected a JSON object")
	}

	name := root.Get("name")
	if name.Type != gjson.String {
		return event.Event{}, fmt.Errorf("missing string field \"name\"")
	}
	src := firstOf(root, "cpu", "source")
	if src.Type != gjson.Number {
		return event.Event{}, fmt.Errorf("missing numeric field \"cpu\"")
	}
	ts := firstOf(root, "ts", "timestamp")
	if ts.Type != gjson.Number {
		return event.Event{}, fmt.Errorf("missing numeric field \"ts\"")
	}

	var ctx any
	if args := root.Get("args"); args.Exists() {
		ctx = args.Value()
	}

	return event.New(name.String(), ctx, event.Source(src.Int()), ts.Uint(),
		int32(root.Get("pid").Int()), root.Get("comm").String())
}

func firstOf(root gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if r := root.Get(k); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}
