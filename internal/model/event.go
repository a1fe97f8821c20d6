package model

import (
	"bytes"
	"fmt"
	"sort"

	jsoniter "github.com/json-iterator/go"
)

// JSON is the codec used for trace files. Numbers inside args decode as
// json.Number so they re-encode exactly as they were read.
var JSON = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// Wire keys owned by Event. Everything else lands in Extra.
const (
	keyName     = "name"
	keyPhase    = "ph"
	keyTS       = "ts"
	keyPID      = "pid"
	keyTID      = "tid"
	keyID       = "id"
	keyParentID = "parentId"
	keyDuration = "dur"
	keyArgs     = "args"
)

// Event is one record of the Chrome Trace Event Format subset spanfix
// understands. Timestamps and durations are microseconds.
type Event struct {
	Name      string
	Phase     Phase
	Timestamp float64
	PID       int64
	TID       int64
	ID        *int64
	ParentID  *int64
	Duration  *float64
	Args      map[string]any

	// Extra holds keys not modelled above (cat, s, tts, non-numeric ids, ...)
	// verbatim so they survive a round trip.
	Extra map[string]jsoniter.RawMessage
}

// Track returns the timeline the event belongs to.
func (e *Event) Track() Track {
	return Track{PID: e.PID, TID: e.TID}
}

// SetID assigns a numeric span id, replacing any non-numeric id read from input.
func (e *Event) SetID(id int64) {
	e.ID = &id
	delete(e.Extra, keyID)
}

// SetParentID assigns the enclosing span's id.
func (e *Event) SetParentID(id int64) {
	e.ParentID = &id
	delete(e.Extra, keyParentID)
}

// ClearParent removes any parent reference, numeric or not.
func (e *Event) ClearParent() {
	e.ParentID = nil
	delete(e.Extra, keyParentID)
}

// ClearIdentity removes id and parentId.
func (e *Event) ClearIdentity() {
	e.ID = nil
	delete(e.Extra, keyID)
	e.ClearParent()
}

// Clone returns a deep copy. Args are copied recursively for the JSON
// container types; other values are shared.
func (e Event) Clone() Event {
	c := e
	if e.ID != nil {
		c.ID = Int64(*e.ID)
	}
	if e.ParentID != nil {
		c.ParentID = Int64(*e.ParentID)
	}
	if e.Duration != nil {
		c.Duration = Float64(*e.Duration)
	}
	if e.Args != nil {
		c.Args = copyValue(e.Args).(map[string]any)
	}
	if e.Extra != nil {
		c.Extra = make(map[string]jsoniter.RawMessage, len(e.Extra))
		for k, v := range e.Extra {
			c.Extra[k] = append(jsoniter.RawMessage(nil), v...)
		}
	}
	return c
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = copyValue(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = copyValue(val)
		}
		return s
	default:
		return v
	}
}

// UnmarshalJSON decodes one trace event object.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw map[string]jsoniter.RawMessage
	if err := JSON.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("trace event must be a JSON object")
	}

	*e = Event{}
	for key, val := range raw {
		var err error
		switch key {
		case keyName:
			err = JSON.Unmarshal(val, &e.Name)
		case keyPhase:
			var ph string
			err = JSON.Unmarshal(val, &ph)
			e.Phase = Phase(ph)
		case keyTS:
			err = JSON.Unmarshal(val, &e.Timestamp)
		case keyPID:
			err = JSON.Unmarshal(val, &e.PID)
		case keyTID:
			err = JSON.Unmarshal(val, &e.TID)
		case keyID:
			e.ID = e.decodeIdentity(key, val)
		case keyParentID:
			e.ParentID = e.decodeIdentity(key, val)
		case keyDuration:
			var d *float64
			err = JSON.Unmarshal(val, &d)
			e.Duration = d
		case keyArgs:
			err = JSON.Unmarshal(val, &e.Args)
		default:
			e.keep(key, val)
		}
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
	}
	return nil
}

// decodeIdentity returns the integer value of an id field. Ids that are not
// integers (Chrome allows hex strings) are kept raw in Extra.
func (e *Event) decodeIdentity(key string, val jsoniter.RawMessage) *int64 {
	var n int64
	if err := JSON.Unmarshal(val, &n); err == nil && !bytes.Equal(bytes.TrimSpace(val), []byte("null")) {
		return &n
	}
	e.keep(key, val)
	return nil
}

func (e *Event) keep(key string, val jsoniter.RawMessage) {
	if e.Extra == nil {
		e.Extra = make(map[string]jsoniter.RawMessage)
	}
	e.Extra[key] = append(jsoniter.RawMessage(nil), val...)
}

// MarshalJSON encodes the event with a stable key order: the modelled
// fields first, then extras sorted by key.
func (e Event) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	n := 0
	write := func(key string, v any) error {
		data, err := JSON.Marshal(v)
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		writeRaw(&buf, &n, key, data)
		return nil
	}

	if err := write(keyName, e.Name); err != nil {
		return nil, err
	}
	if err := write(keyPhase, string(e.Phase)); err != nil {
		return nil, err
	}
	if err := write(keyTS, e.Timestamp); err != nil {
		return nil, err
	}
	if err := write(keyPID, e.PID); err != nil {
		return nil, err
	}
	if err := write(keyTID, e.TID); err != nil {
		return nil, err
	}
	if e.ID != nil {
		if err := write(keyID, *e.ID); err != nil {
			return nil, err
		}
	}
	if e.ParentID != nil {
		if err := write(keyParentID, *e.ParentID); err != nil {
			return nil, err
		}
	}
	if e.Duration != nil {
		if err := write(keyDuration, *e.Duration); err != nil {
			return nil, err
		}
	}
	if e.Args != nil {
		if err := write(keyArgs, e.Args); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(e.Extra))
	for k := range e.Extra {
		if (k == keyID && e.ID != nil) || (k == keyParentID && e.ParentID != nil) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeRaw(&buf, &n, k, e.Extra[k])
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeRaw(buf *bytes.Buffer, n *int, key string, data []byte) {
	if *n > 0 {
		buf.WriteByte(',')
	}
	*n++
	k, _ := JSON.Marshal(key)
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(data)
}
