package traceio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	jsoniter "github.com/json-iterator/go"

	"github.com/ppiankov/spanfix/internal/model"
)

// ErrMalformed marks input that is not a JSON array of trace event objects
// (or an object holding one under "traceEvents").
var ErrMalformed = errors.New("malformed trace")

// traceEventsKey is the container key of the object form of the format.
const traceEventsKey = "traceEvents"

// Layout is the top-level shape of a trace file.
type Layout string

const (
	LayoutAuto   Layout = "auto"
	LayoutArray  Layout = "array"
	LayoutObject Layout = "object"
)

// ParseLayout validates a layout name. Empty selects LayoutAuto.
func ParseLayout(s string) (Layout, error) {
	switch Layout(s) {
	case "", LayoutAuto:
		return LayoutAuto, nil
	case LayoutArray, LayoutObject:
		return Layout(s), nil
	default:
		return "", fmt.Errorf("unknown output layout %q (valid: auto, array, object)", s)
	}
}

// Document is a decoded trace file.
type Document struct {
	Events []model.Event
	// Layout is the shape the document was read in.
	Layout Layout
	// Fields holds top-level keys other than traceEvents (displayTimeUnit,
	// otherData, ...) for the object layout.
	Fields map[string]jsoniter.RawMessage
}

// Load reads and decodes a trace file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read trace: %w", ErrMalformed, err)
	}
	doc, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Decode parses a trace held in memory.
func Decode(data []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformed)
	}

	switch trimmed[0] {
	case '[':
		events, err := decodeEvents(trimmed)
		if err != nil {
			return nil, err
		}
		return &Document{Events: events, Layout: LayoutArray}, nil

	case '{':
		var top map[string]jsoniter.RawMessage
		if err := model.JSON.Unmarshal(trimmed, &top); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		raw, ok := top[traceEventsKey]
		if !ok {
			return nil, fmt.Errorf("%w: object has no %q array", ErrMalformed, traceEventsKey)
		}
		events, err := decodeEvents(bytes.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		delete(top, traceEventsKey)
		return &Document{Events: events, Layout: LayoutObject, Fields: top}, nil

	default:
		return nil, fmt.Errorf("%w: expected a JSON array or object", ErrMalformed)
	}
}

func decodeEvents(data []byte) ([]model.Event, error) {
	if len(data) == 0 || data[0] != '[' {
		return nil, fmt.Errorf("%w: %s is not an array", ErrMalformed, traceEventsKey)
	}
	var raws []jsoniter.RawMessage
	if err := model.JSON.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	events := make([]model.Event, len(raws))
	for i, raw := range raws {
		if err := model.JSON.Unmarshal(raw, &events[i]); err != nil {
			return nil, fmt.Errorf("%w: event %d: %v", ErrMalformed, i, err)
		}
	}
	return events, nil
}

// SaveOptions controls encoding.
type SaveOptions struct {
	// Layout of the output. LayoutAuto keeps the document's own layout.
	Layout Layout
	Indent bool
}

// Encode renders a document.
func Encode(doc *Document, opts SaveOptions) ([]byte, error) {
	events := doc.Events
	if events == nil {
		events = []model.Event{}
	}
	eventsJSON, err := model.JSON.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("encode events: %w", err)
	}

	layout := opts.Layout
	if layout == "" || layout == LayoutAuto {
		layout = doc.Layout
	}

	var out []byte
	if layout == LayoutObject {
		var buf bytes.Buffer
		buf.WriteString(`{"` + traceEventsKey + `":`)
		buf.Write(eventsJSON)
		keys := make([]string, 0, len(doc.Fields))
		for k := range doc.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			name, _ := model.JSON.Marshal(k)
			buf.WriteByte(',')
			buf.Write(name)
			buf.WriteByte(':')
			buf.Write(doc.Fields[k])
		}
		buf.WriteByte('}')
		out = buf.Bytes()
	} else {
		out = eventsJSON
	}

	if !opts.Indent {
		return out, nil
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, out, "", "  "); err != nil {
		return nil, fmt.Errorf("indent output: %w", err)
	}
	pretty.WriteByte('\n')
	return pretty.Bytes(), nil
}

// Save encodes doc and writes it to path. The file is written to a
// temporary sibling and renamed into place, so a failed run never leaves
// a truncated output behind.
func Save(path string, doc *Document, opts SaveOptions) error {
	data, err := Encode(doc, opts)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".spanfix-*.json")
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod output: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}
