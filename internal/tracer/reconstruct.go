package tracer

import "github.com/ppiankov/spanfix/internal/model"

// Options controls identity reconstruction.
type Options struct {
	// SingleTrack puts every event on one nesting stack regardless of
	// pid/tid. This reproduces traces whose producer did not separate
	// timelines; the default keys stacks by track.
	SingleTrack bool
}

// Stats summarises one reconstruction pass.
type Stats struct {
	Events        int `json:"events"`
	Spans         int `json:"spans"`
	UnmatchedEnds int `json:"unmatched_ends"`
	OpenSpans     int `json:"open_spans"`
	MaxDepth      int `json:"max_depth"`
	Tracks        int `json:"tracks"`
}

// Result holds the reconstructed events in timestamp order.
type Result struct {
	Events []model.Event
	Stats  Stats

	// Unclosed lists ids of Begin events that never saw a matching End.
	// Their duration is undefined.
	Unclosed []int64
}

// Reconstruct assigns span identity to Begin/End events. Events are
// stable-sorted by timestamp, each Begin gets a fresh id and the id of the
// innermost open span on its track as parentId, and each End takes the id
// of the span it closes. An End with nothing open on its track is passed
// through with no identity. Other phases are untouched.
//
// The input slice is not modified.
func Reconstruct(events []model.Event, opts Options) *Result {
	sorted := model.CloneAll(events)
	model.SortByTimestamp(sorted)

	ids := newIDSequence()
	stacks := newStackSet(opts.SingleTrack)
	stats := Stats{Events: len(sorted)}

	for i := range sorted {
		ev := &sorted[i]
		switch ev.Phase {
		case model.PhaseBegin:
			stack := stacks.For(ev.Track())
			id := ids.Next()
			ev.SetID(id)
			if parent, ok := stack.Top(); ok {
				ev.SetParentID(parent)
			} else {
				ev.ClearParent()
			}
			stack.Push(id)

			stats.Spans++
			if d := stack.Depth(); d > stats.MaxDepth {
				stats.MaxDepth = d
			}

		case model.PhaseEnd:
			id, ok := stacks.For(ev.Track()).Pop()
			if !ok {
				ev.ClearIdentity()
				stats.UnmatchedEnds++
				continue
			}
			ev.SetID(id)
			ev.ClearParent()
		}
	}

	unclosed := stacks.Unclosed()
	stats.OpenSpans = len(unclosed)
	stats.Tracks = stacks.Len()

	return &Result{
		Events:   sorted,
		Stats:    stats,
		Unclosed: unclosed,
	}
}
