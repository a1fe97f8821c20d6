package merge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/spanfix/internal/model"
)

// CanonicalArgs renders an args map so that semantically equal maps always
// produce the same string: keys are sorted at every level and nested
// containers are canonicalized recursively. Nil and empty maps are equal.
func CanonicalArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	var b strings.Builder
	writeCanonical(&b, args)
	return b.String()
}

func writeCanonical(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			writeScalar(b, k)
			b.WriteByte(':')
			writeCanonical(b, t[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	default:
		writeOther(b, t)
	}
}

// writeOther handles values built in Go rather than decoded from JSON
// (typed maps, slices, structs). They are normalised through the codec
// so a map[string]string and the equivalent map[string]any agree.
func writeOther(b *strings.Builder, v any) {
	data, err := model.JSON.Marshal(v)
	if err != nil {
		fmt.Fprintf(b, "%#v", v)
		return
	}
	if len(data) > 0 && (data[0] == '{' || data[0] == '[') {
		var generic any
		if err := model.JSON.Unmarshal(data, &generic); err == nil {
			writeCanonical(b, generic)
			return
		}
	}
	b.Write(data)
}

func writeScalar(b *strings.Builder, s string) {
	data, _ := model.JSON.Marshal(s)
	b.Write(data)
}
