package merge

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/ppiankov/spanfix/internal/model"
)

// Style selects what an alternating duplicate group collapses into.
type Style string

const (
	// StyleCollapse emits one event copied from the first Begin, stamped
	// with the last End's timestamp and duration.
	StyleCollapse Style = "collapse"
	// StylePair keeps the first Begin and the last End as one B/E pair.
	StylePair Style = "pair"
	// StyleComplete emits one X event from the first Begin to the last End.
	StyleComplete Style = "complete"
)

// ParseStyle validates a style name. Empty selects StyleCollapse.
func ParseStyle(s string) (Style, error) {
	switch Style(strings.ToLower(strings.TrimSpace(s))) {
	case "", StyleCollapse:
		return StyleCollapse, nil
	case StylePair:
		return StylePair, nil
	case StyleComplete:
		return StyleComplete, nil
	default:
		return "", fmt.Errorf("unknown merge style %q (valid: collapse, pair, complete)", s)
	}
}

// Options controls merging.
type Options struct {
	Style Style
}

// Outcome records what happened to a candidate group.
type Outcome string

const (
	OutcomeMerged         Outcome = "merged"
	OutcomeNotAlternating Outcome = "not_alternating"
)

// Group describes one candidate group: more than one B/E pair sharing
// name, args, pid and tid.
type Group struct {
	Name        string  `json:"name"`
	Fingerprint string  `json:"fingerprint"`
	PID         int64   `json:"pid"`
	TID         int64   `json:"tid"`
	Size        int     `json:"size"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Outcome     Outcome `json:"outcome"`
}

// Stats summarises one merge pass.
type Stats struct {
	EventsIn   int `json:"events_in"`
	EventsOut  int `json:"events_out"`
	Candidates int `json:"candidates"`
	Merged     int `json:"merged"`
	Skipped    int `json:"skipped"`
	Superseded int `json:"superseded"`
	Reparented int `json:"reparented"`
}

// Result holds the merged event list in timestamp order.
type Result struct {
	Events []model.Event
	Groups []Group
	Stats  Stats
}

// Key identifies a merge group.
type Key struct {
	Name string
	Args string
	PID  int64
	TID  int64
}

// KeyOf returns the merge group key of an event.
func KeyOf(ev *model.Event) Key {
	return Key{
		Name: ev.Name,
		Args: CanonicalArgs(ev.Args),
		PID:  ev.PID,
		TID:  ev.TID,
	}
}

func (k Key) String() string {
	return k.Name + "|" + k.Args + "|" + strconv.FormatInt(k.PID, 10) + "|" + strconv.FormatInt(k.TID, 10)
}

// Fingerprint is a short stable hash of the key for reports and logs.
func (k Key) Fingerprint() string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(k.String()))
}

// GroupIndexes buckets the indexes of B/E events by key. Keys are returned
// in order of first appearance.
func GroupIndexes(events []model.Event) ([]Key, map[Key][]int) {
	groups := make(map[Key][]int)
	var order []Key
	for i := range events {
		if !events[i].Phase.IsBoundary() {
			continue
		}
		k := KeyOf(&events[i])
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}
	return order, groups
}

// Merge collapses duplicate instrumentation. Every group of B/E events
// sharing a key that holds more than one pair and strictly alternates
// B,E,B,E,... in timestamp order is replaced according to opts.Style.
// Groups that do not alternate are left as they are. Events whose parent
// was a superseded Begin are re-parented to the id the group keeps. The result is
// stable-sorted by timestamp with merged events placed after retained
// events sharing their timestamp.
//
// The input slice is not modified.
func Merge(events []model.Event, opts Options) *Result {
	style := opts.Style
	if style == "" {
		style = StyleCollapse
	}

	res := &Result{Stats: Stats{EventsIn: len(events)}}
	order, groups := GroupIndexes(events)

	superseded := make([]bool, len(events))
	var merged []model.Event
	// Superseded Begin ids mapped to the id their group keeps.
	remap := make(map[int64]int64)

	for _, k := range order {
		idx := groups[k]
		if len(idx) <= 2 {
			continue
		}
		sort.SliceStable(idx, func(a, b int) bool {
			return events[idx[a]].Timestamp < events[idx[b]].Timestamp
		})

		first, last := &events[idx[0]], &events[idx[len(idx)-1]]
		g := Group{
			Name:        k.Name,
			Fingerprint: k.Fingerprint(),
			PID:         k.PID,
			TID:         k.TID,
			Size:        len(idx),
			Start:       first.Timestamp,
			End:         last.Timestamp,
		}
		res.Stats.Candidates++

		if !alternates(events, idx) {
			g.Outcome = OutcomeNotAlternating
			res.Groups = append(res.Groups, g)
			res.Stats.Skipped++
			continue
		}

		merged = append(merged, combine(first, last, style)...)
		for _, i := range idx {
			superseded[i] = true
			ev := &events[i]
			if first.ID != nil && ev.Phase == model.PhaseBegin && ev.ID != nil && *ev.ID != *first.ID {
				remap[*ev.ID] = *first.ID
			}
		}
		g.Outcome = OutcomeMerged
		res.Groups = append(res.Groups, g)
		res.Stats.Merged++
		res.Stats.Superseded += len(idx)
	}

	out := make([]model.Event, 0, len(events)-res.Stats.Superseded+len(merged))
	for i := range events {
		if !superseded[i] {
			out = append(out, events[i].Clone())
		}
	}
	out = append(out, merged...)
	for i := range out {
		if p := out[i].ParentID; p != nil {
			if to, ok := remap[*p]; ok {
				out[i].SetParentID(to)
				res.Stats.Reparented++
			}
		}
	}
	model.SortByTimestamp(out)

	res.Events = out
	res.Stats.EventsOut = len(out)
	return res
}

// alternates reports whether the group, already in timestamp order, reads
// B,E,B,E,... ending on an E.
func alternates(events []model.Event, idx []int) bool {
	if len(idx)%2 != 0 {
		return false
	}
	for n, i := range idx {
		want := model.PhaseBegin
		if n%2 == 1 {
			want = model.PhaseEnd
		}
		if events[i].Phase != want {
			return false
		}
	}
	return true
}

func combine(first, last *model.Event, style Style) []model.Event {
	switch style {
	case StylePair:
		b := first.Clone()
		e := last.Clone()
		if b.ID != nil {
			e.SetID(*b.ID)
		} else {
			e.ClearIdentity()
		}
		e.ClearParent()
		return []model.Event{b, e}

	case StyleComplete:
		x := first.Clone()
		x.Phase = model.PhaseComplete
		x.Duration = model.Float64(last.Timestamp - first.Timestamp)
		return []model.Event{x}

	default:
		c := first.Clone()
		c.Timestamp = last.Timestamp
		if last.Duration != nil {
			c.Duration = model.Float64(*last.Duration)
		} else {
			c.Duration = model.Float64(last.Timestamp - first.Timestamp)
		}
		return []model.Event{c}
	}
}
