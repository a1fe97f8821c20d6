package inspect

import (
	"fmt"
	"math"

	"github.com/hashicorp/go-multierror"

	"github.com/ppiankov/spanfix/internal/model"
)

// Options controls verification.
type Options struct {
	// SingleTrack treats all events as one timeline, matching traces
	// reconstructed in single-track mode.
	SingleTrack bool
}

// lifetime is the time range a span is open on its track. Interval
// spans (merged Begins, X events) have no End.
type lifetime struct {
	track      model.Track
	start, end float64
	interval   bool
}

func (l lifetime) covers(track model.Track, ts float64) bool {
	return l.track == track && l.start <= ts && ts <= l.end
}

// Verify checks span identity in a reconstructed trace:
//   - every Begin carries an id not held by another open span
//   - every parentId names a span open at that point on the same track
//   - every End with an id closes the innermost open span of its track
//
// Merged spans have no End: a Begin carrying dur with no later End of the
// same id is open over [ts-dur, ts], an X event over [ts, ts+dur]. They
// can be parents but never sit on the nesting stack. Ends without an id
// and Begins never closed are tolerated. All violations are collected;
// nil means the trace is consistent.
func Verify(events []model.Event, opts Options) error {
	sorted := model.CloneAll(events)
	model.SortByTimestamp(sorted)

	trackOf := func(ev *model.Event) model.Track {
		if opts.SingleTrack {
			return model.Track{}
		}
		return ev.Track()
	}

	merged, spans := lifetimes(sorted, trackOf)

	var result *multierror.Error
	open := make(map[int64]model.Track)
	stacks := make(map[model.Track][]int64)

	for i := range sorted {
		ev := &sorted[i]
		track := trackOf(ev)

		switch ev.Phase {
		case model.PhaseBegin:
			if ev.ID == nil {
				result = multierror.Append(result, fmt.Errorf("ts %v: Begin %q has no id", ev.Timestamp, ev.Name))
				continue
			}
			id := *ev.ID
			if merged[i] {
				if ev.ParentID != nil {
					start := spans[id].start
					if p, ok := spans[*ev.ParentID]; !ok || !p.covers(track, start) {
						result = multierror.Append(result, fmt.Errorf("ts %v: merged span %d names parent %d which is not open at %v", ev.Timestamp, id, *ev.ParentID, start))
					}
				}
				continue
			}
			if _, dup := open[id]; dup {
				result = multierror.Append(result, fmt.Errorf("ts %v: Begin %q reuses id %d of an open span", ev.Timestamp, ev.Name, id))
				continue
			}
			if ev.ParentID != nil {
				parentTrack, ok := open[*ev.ParentID]
				switch {
				case ok && parentTrack != track:
					result = multierror.Append(result, fmt.Errorf("ts %v: span %d on track %s names parent %d on track %s", ev.Timestamp, id, track, *ev.ParentID, parentTrack))
				case !ok && !coveredByInterval(spans, *ev.ParentID, track, ev.Timestamp):
					result = multierror.Append(result, fmt.Errorf("ts %v: span %d names parent %d which is not open", ev.Timestamp, id, *ev.ParentID))
				}
			}
			open[id] = track
			stacks[track] = append(stacks[track], id)

		case model.PhaseComplete:
			if ev.ID == nil || ev.ParentID == nil {
				continue
			}
			if p, ok := spans[*ev.ParentID]; !ok || !p.covers(track, ev.Timestamp) {
				result = multierror.Append(result, fmt.Errorf("ts %v: span %d names parent %d which is not open", ev.Timestamp, *ev.ID, *ev.ParentID))
			}

		case model.PhaseEnd:
			if ev.ID == nil {
				continue
			}
			id := *ev.ID
			if _, ok := open[id]; !ok {
				result = multierror.Append(result, fmt.Errorf("ts %v: End %q closes span %d which is not open", ev.Timestamp, ev.Name, id))
				continue
			}
			stack := stacks[open[id]]
			if top := stack[len(stack)-1]; top != id {
				result = multierror.Append(result, fmt.Errorf("ts %v: End %q closes span %d while span %d is innermost", ev.Timestamp, ev.Name, id, top))
			}
			stacks[open[id]] = removeID(stack, id)
			delete(open, id)
		}
	}

	return result.ErrorOrNil()
}

// lifetimes marks merged spans by index and records the open range of
// every span with an id. Spans never closed stay open to +Inf.
func lifetimes(sorted []model.Event, trackOf func(*model.Event) model.Track) ([]bool, map[int64]lifetime) {
	lastEnd := make(map[int64]int)
	for i := range sorted {
		if ev := &sorted[i]; ev.Phase == model.PhaseEnd && ev.ID != nil {
			lastEnd[*ev.ID] = i
		}
	}

	merged := make([]bool, len(sorted))
	spans := make(map[int64]lifetime)
	for i := range sorted {
		ev := &sorted[i]
		if ev.ID == nil {
			continue
		}
		id := *ev.ID
		switch ev.Phase {
		case model.PhaseBegin:
			if end, ok := lastEnd[id]; ev.Duration != nil && (!ok || end < i) {
				merged[i] = true
				spans[id] = lifetime{track: trackOf(ev), start: ev.Timestamp - *ev.Duration, end: ev.Timestamp, interval: true}
				continue
			}
			if _, seen := spans[id]; !seen {
				spans[id] = lifetime{track: trackOf(ev), start: ev.Timestamp, end: math.Inf(1)}
			}
		case model.PhaseEnd:
			if l, ok := spans[id]; ok && math.IsInf(l.end, 1) {
				l.end = ev.Timestamp
				spans[id] = l
			}
		case model.PhaseComplete:
			var dur float64
			if ev.Duration != nil {
				dur = *ev.Duration
			}
			spans[id] = lifetime{track: trackOf(ev), start: ev.Timestamp, end: ev.Timestamp + dur, interval: true}
		}
	}
	return merged, spans
}

// coveredByInterval reports whether id is an interval span open on track
// at ts.
func coveredByInterval(spans map[int64]lifetime, id int64, track model.Track, ts float64) bool {
	l, ok := spans[id]
	return ok && l.interval && l.covers(track, ts)
}

func removeID(stack []int64, id int64) []int64 {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == id {
			return append(stack[:i], stack[i+1:]...)
		}
	}
	return stack
}
